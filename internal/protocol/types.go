package protocol

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/iambrandonn/pairagent/internal/oneshot"
)

// Kind names a pairing request variant. Values match the org.bluez.Agent1
// method that produced the request.
type Kind string

const (
	KindRequestAuthorization Kind = "RequestAuthorization"
	KindRequestConfirmation  Kind = "RequestConfirmation"
	KindRequestPasskey       Kind = "RequestPasskey"
	KindRequestPinCode       Kind = "RequestPinCode"
	KindAuthorizeService     Kind = "AuthorizeService"
	KindDisplayPasskey       Kind = "DisplayPasskey"
	KindDisplayPinCode       Kind = "DisplayPinCode"
	KindCancel               Kind = "Cancel"
	KindRelease              Kind = "Release"
)

// DevicePath is an opaque handle into the bus device registry
// (for BlueZ, an object path such as /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF).
type DevicePath string

// UnknownDevice is shown to the operator when a device name cannot be resolved.
const UnknownDevice = "Unknown device"

// Request is one inbound pairing request. The set of implementations is
// closed: the variants below are the only ones.
type Request interface {
	Kind() Kind
	RequestID() string

	// Decline settles the reply slot with the negative answer for the
	// variant. It reports false when the variant has no reply slot or the
	// slot was already settled.
	Decline() bool

	isRequest()
}

// Header is embedded in every variant.
type Header struct {
	ID string
}

func (h Header) RequestID() string { return h.ID }
func (Header) isRequest()         {}

// NewHeader returns a header with a fresh request id.
func NewHeader() Header {
	return Header{ID: uuid.New().String()}
}

// RequestAuthorization asks whether an incoming pairing may proceed.
type RequestAuthorization struct {
	Header
	Device DevicePath
	Reply  *oneshot.Chan[bool]
}

func (*RequestAuthorization) Kind() Kind { return KindRequestAuthorization }
func (r *RequestAuthorization) Decline() bool {
	return r.Reply.Send(false)
}

// RequestConfirmation asks whether Passkey matches the one shown on the
// remote device.
type RequestConfirmation struct {
	Header
	Device  DevicePath
	Passkey uint32
	Reply   *oneshot.Chan[bool]
}

func (*RequestConfirmation) Kind() Kind { return KindRequestConfirmation }
func (r *RequestConfirmation) Decline() bool {
	return r.Reply.Send(false)
}

// RequestPasskey asks the agent to supply a passkey. A nil reply means no
// answer.
type RequestPasskey struct {
	Header
	Device DevicePath
	Reply  *oneshot.Chan[*uint32]
}

func (*RequestPasskey) Kind() Kind { return KindRequestPasskey }
func (r *RequestPasskey) Decline() bool {
	return r.Reply.Send(nil)
}

// RequestPinCode asks the agent to supply a legacy PIN code. A nil reply
// means no answer.
type RequestPinCode struct {
	Header
	Device DevicePath
	Reply  *oneshot.Chan[*string]
}

func (*RequestPinCode) Kind() Kind { return KindRequestPinCode }
func (r *RequestPinCode) Decline() bool {
	return r.Reply.Send(nil)
}

// AuthorizeService reports a profile connection attempt.
type AuthorizeService struct {
	Header
	Device DevicePath
	UUID   string
}

func (*AuthorizeService) Kind() Kind    { return KindAuthorizeService }
func (*AuthorizeService) Decline() bool { return false }

// DisplayPasskey reports a passkey the remote side should type.
type DisplayPasskey struct {
	Header
	Device  DevicePath
	Passkey uint32
	Entered uint16
}

func (*DisplayPasskey) Kind() Kind    { return KindDisplayPasskey }
func (*DisplayPasskey) Decline() bool { return false }

// DisplayPinCode reports a PIN code the remote side should type.
type DisplayPinCode struct {
	Header
	Device  DevicePath
	PinCode string
}

func (*DisplayPinCode) Kind() Kind    { return KindDisplayPinCode }
func (*DisplayPinCode) Decline() bool { return false }

// Cancel reports that the remote side abandoned the current request.
type Cancel struct {
	Header
}

func (*Cancel) Kind() Kind    { return KindCancel }
func (*Cancel) Decline() bool { return false }

// Release reports that the agent-manager dropped this agent.
type Release struct {
	Header
}

func (*Release) Kind() Kind    { return KindRelease }
func (*Release) Decline() bool { return false }

// FormatPasskey renders a numeric passkey the way BlueZ devices show it.
func FormatPasskey(passkey uint32) string {
	return fmt.Sprintf("%06d", passkey)
}

// Reason records where a Decision came from.
type Reason string

const (
	ReasonPolicy            Reason = "policy"
	ReasonOperatorAccepted  Reason = "operator_accepted"
	ReasonOperatorRejected  Reason = "operator_rejected"
	ReasonSurfaceTerminated Reason = "surface_terminated"
	ReasonSurfaceFailed     Reason = "surface_failed"
	ReasonTimedOut          Reason = "timed_out"
	ReasonAborted           Reason = "aborted"
)

// Decision is the outcome for one request.
type Decision struct {
	Accept bool
	Reason Reason
}

// Accepted and Rejected are the decisions produced by policy defaults.
var (
	Accepted = Decision{Accept: true, Reason: ReasonPolicy}
	Rejected = Decision{Accept: false, Reason: ReasonPolicy}
)

// DecisionRequest is what the operator is asked to confirm.
type DecisionRequest struct {
	RequestID  string
	DeviceName string
	Passkey    string
}

// Title is the line shown above the passkey. Requests without a passkey
// (authorization prompts) only ask about the pairing itself.
func (r DecisionRequest) Title() string {
	name := r.DeviceName
	if name == "" {
		name = UnknownDevice
	}
	if r.Passkey == "" {
		return fmt.Sprintf("%q would like to pair", name)
	}
	return fmt.Sprintf("%q would like to pair, confirm code", name)
}

// Policy selects how a request type is answered.
type Policy string

const (
	PolicyAccept Policy = "accept"
	PolicyReject Policy = "reject"
	PolicyAsk    Policy = "ask"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	switch p {
	case PolicyAccept, PolicyReject, PolicyAsk:
		return true
	}
	return false
}
