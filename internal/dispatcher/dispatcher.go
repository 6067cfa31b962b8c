// Package dispatcher answers pairing requests one at a time.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iambrandonn/pairagent/internal/protocol"
)

// DefaultLookupTimeout bounds a device name lookup.
const DefaultLookupTimeout = 5 * time.Second

// Confirmer asks the operator about a request.
type Confirmer interface {
	Confirm(ctx context.Context, req protocol.DecisionRequest) protocol.Decision
}

// DeviceNamer resolves a device handle to a display name.
type DeviceNamer interface {
	DeviceName(ctx context.Context, device protocol.DevicePath) (string, error)
}

// Policy selects how authorization and confirmation requests are answered.
type Policy struct {
	Authorization protocol.Policy
	Confirmation  protocol.Policy
}

// DefaultPolicy trusts authorization requests and asks about confirmations.
var DefaultPolicy = Policy{
	Authorization: protocol.PolicyAccept,
	Confirmation:  protocol.PolicyAsk,
}

// Dispatcher consumes pairing requests in arrival order. It does not start
// on a request until the previous one has been answered.
type Dispatcher struct {
	confirmer     Confirmer
	devices       DeviceNamer
	policy        Policy
	logger        *slog.Logger
	lookupTimeout time.Duration

	// backlog holds requests that arrived while a confirmation was in
	// flight, in arrival order.
	backlog []protocol.Request
}

// New creates a Dispatcher.
func New(confirmer Confirmer, devices DeviceNamer, policy Policy, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		confirmer:     confirmer,
		devices:       devices,
		policy:        policy,
		logger:        logger,
		lookupTimeout: DefaultLookupTimeout,
	}
}

// Run answers requests until requests is closed or ctx ends. Requests still
// pending at that point are declined, so every reply slot is settled. Run
// returns nil when the source closed and the context's cause otherwise.
func (d *Dispatcher) Run(ctx context.Context, requests <-chan protocol.Request) error {
	d.logger.Debug("dispatcher started")
	defer d.logger.Debug("dispatcher stopped")

	for {
		req, ok := d.next(ctx, requests)
		if !ok {
			d.shutdown(requests)
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			return nil
		}
		d.handle(ctx, req, requests)
	}
}

func (d *Dispatcher) next(ctx context.Context, requests <-chan protocol.Request) (protocol.Request, bool) {
	if len(d.backlog) > 0 {
		if ctx.Err() != nil {
			return nil, false
		}
		req := d.backlog[0]
		d.backlog = d.backlog[1:]
		return req, true
	}

	select {
	case req, ok := <-requests:
		return req, ok
	case <-ctx.Done():
		return nil, false
	}
}

func (d *Dispatcher) handle(ctx context.Context, req protocol.Request, requests <-chan protocol.Request) {
	logger := d.logger.With("request_id", req.RequestID(), "kind", req.Kind())
	logger.Debug("request received")

	switch r := req.(type) {
	case *protocol.RequestAuthorization:
		decision := d.decide(ctx, d.policy.Authorization, r.ID, r.Device, "", requests)
		d.reply(logger, r.Reply.Send(decision.Accept), decision)

	case *protocol.RequestConfirmation:
		decision := d.decide(ctx, d.policy.Confirmation, r.ID, r.Device, protocol.FormatPasskey(r.Passkey), requests)
		d.reply(logger, r.Reply.Send(decision.Accept), decision)

	case *protocol.RequestPasskey:
		d.reply(logger, r.Reply.Send(nil), protocol.Rejected)

	case *protocol.RequestPinCode:
		d.reply(logger, r.Reply.Send(nil), protocol.Rejected)

	case *protocol.AuthorizeService:
		logger.Debug("service authorization acknowledged", "device", r.Device, "uuid", r.UUID)

	case *protocol.DisplayPasskey:
		logger.Debug("display passkey acknowledged", "device", r.Device, "passkey", protocol.FormatPasskey(r.Passkey), "entered", r.Entered)

	case *protocol.DisplayPinCode:
		logger.Debug("display pincode acknowledged", "device", r.Device)

	case *protocol.Cancel:
		logger.Debug("cancel acknowledged, nothing in flight")

	case *protocol.Release:
		logger.Info("agent released by agent-manager")

	default:
		logger.Warn("unhandled request type", "type", fmt.Sprintf("%T", req))
	}
}

func (d *Dispatcher) reply(logger *slog.Logger, sent bool, decision protocol.Decision) {
	if !sent {
		logger.Warn("reply not delivered, remote no longer waiting", "accept", decision.Accept)
		return
	}
	logger.Info("replied", "accept", decision.Accept, "reason", decision.Reason)
}

func (d *Dispatcher) decide(ctx context.Context, policy protocol.Policy, requestID string, device protocol.DevicePath, passkey string, requests <-chan protocol.Request) protocol.Decision {
	switch policy {
	case protocol.PolicyAccept:
		return protocol.Accepted
	case protocol.PolicyAsk:
		return d.ask(ctx, requestID, device, passkey, requests)
	default:
		return protocol.Rejected
	}
}

// ask runs one confirmation. While the operator decides, requests keeps
// being read: a Cancel aborts the confirmation and anything else is queued
// behind it.
func (d *Dispatcher) ask(ctx context.Context, requestID string, device protocol.DevicePath, passkey string, requests <-chan protocol.Request) protocol.Decision {
	req := protocol.DecisionRequest{
		RequestID:  requestID,
		DeviceName: d.deviceName(ctx, device),
		Passkey:    passkey,
	}

	confirmCtx, abort := context.WithCancel(ctx)
	defer abort()

	result := make(chan protocol.Decision, 1)
	go func() {
		result <- d.confirmer.Confirm(confirmCtx, req)
	}()

	for {
		select {
		case decision := <-result:
			return decision

		case next, ok := <-requests:
			if !ok {
				d.logger.Info("request source closed during confirmation, aborting")
				requests = nil
				abort()
				continue
			}
			if _, isCancel := next.(*protocol.Cancel); isCancel {
				d.logger.Info("remote cancelled pairing, aborting confirmation", "request_id", next.RequestID())
				abort()
				continue
			}
			d.logger.Warn("request arrived during confirmation, queued",
				"request_id", next.RequestID(),
				"kind", next.Kind())
			d.backlog = append(d.backlog, next)
		}
	}
}

func (d *Dispatcher) deviceName(ctx context.Context, device protocol.DevicePath) string {
	if d.devices == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, d.lookupTimeout)
	defer cancel()

	name, err := d.devices.DeviceName(ctx, device)
	if err != nil {
		d.logger.Warn("device name lookup failed", "device", device, "error", err)
		return ""
	}
	return name
}

// shutdown declines everything still waiting for an answer.
func (d *Dispatcher) shutdown(requests <-chan protocol.Request) {
	pending := d.backlog
	d.backlog = nil

drain:
	for {
		select {
		case req, ok := <-requests:
			if !ok {
				break drain
			}
			pending = append(pending, req)
		default:
			break drain
		}
	}

	for _, req := range pending {
		if req.Decline() {
			d.logger.Info("declined pending request at shutdown", "request_id", req.RequestID(), "kind", req.Kind())
		}
	}
}
