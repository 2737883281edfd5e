// Package events fans detection results and violations out to external
// subscribers over NATS on a best-effort basis. Grounded on
// cmd/ai-service/main.go's connect-with-fallback/publishDetection idiom:
// a failed connection logs a warning and disables publishing rather than
// failing startup, and a failed publish logs and moves on rather than
// retrying.
package events

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/technosupport/ts-vms/internal/data"
	"github.com/technosupport/ts-vms/internal/runtime"
)

// Publisher implements runtime.EventPublisher over a NATS connection,
// publishing to company-scoped subjects so an external subscriber can
// filter on ppe.events.<company_id>.
type Publisher struct {
	nc *nats.Conn
}

// Connect dials addr and returns a Publisher, or nil with the dial error
// if addr is unreachable. A nil *Publisher is never returned paired with
// a nil error; callers pass a nil runtime.EventPublisher to
// Supervisor.SetEventPublisher when Connect fails, per SPEC_FULL.md's
// "publishing is a silent no-op" note.
func Connect(addr string, serviceName string) (*Publisher, error) {
	nc, err := nats.Connect(addr, nats.Name(serviceName))
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc}, nil
}

func (p *Publisher) Close() {
	if p != nil && p.nc != nil {
		p.nc.Close()
	}
}

type detectionEvent struct {
	CompanyID string                  `json:"company_id"`
	Result    runtime.DetectionResult `json:"result"`
	EmittedAt time.Time               `json:"emitted_at"`
}

type violationEvent struct {
	CompanyID string          `json:"company_id"`
	Violation *data.Violation `json:"violation"`
	EmittedAt time.Time       `json:"emitted_at"`
}

func subject(companyID uuid.UUID) string {
	return "ppe.events." + companyID.String()
}

func (p *Publisher) PublishDetection(companyID uuid.UUID, result runtime.DetectionResult) {
	p.publish(companyID, detectionEvent{CompanyID: companyID.String(), Result: result, EmittedAt: time.Now()})
}

func (p *Publisher) PublishViolation(companyID uuid.UUID, v *data.Violation) {
	p.publish(companyID, violationEvent{CompanyID: companyID.String(), Violation: v, EmittedAt: time.Now()})
}

func (p *Publisher) publish(companyID uuid.UUID, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[events] marshal failed: %v", err)
		return
	}
	if err := p.nc.Publish(subject(companyID), body); err != nil {
		log.Printf("[events] publish failed: %v", err)
	}
}
