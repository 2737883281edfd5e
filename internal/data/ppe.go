package data

// PPEClass is the closed enum of personal-protective-equipment categories
// named in spec.md §3.
type PPEClass string

const (
	PPEHelmet      PPEClass = "helmet"
	PPESafetyVest  PPEClass = "safety_vest"
	PPESafetyShoes PPEClass = "safety_shoes"
	PPEGloves      PPEClass = "gloves"
	PPEGlasses     PPEClass = "glasses"
	PPEFaceMask    PPEClass = "face_mask"
	PPEHairnet     PPEClass = "hairnet"
	PPEApron       PPEClass = "apron"
	PPESafetySuit  PPEClass = "safety_suit"
)

var validPPEClasses = map[PPEClass]bool{
	PPEHelmet: true, PPESafetyVest: true, PPESafetyShoes: true, PPEGloves: true,
	PPEGlasses: true, PPEFaceMask: true, PPEHairnet: true, PPEApron: true, PPESafetySuit: true,
}

// IsValidPPEClass reports whether c belongs to the closed enum.
func IsValidPPEClass(c PPEClass) bool {
	return validPPEClasses[c]
}
