package gcp

import (
	"context"
	"strconv"

	compute "cloud.google.com/go/compute/apiv1"
	computepb "cloud.google.com/go/compute/apiv1/computepb"

	"github.com/softcane/cloud-action-agent/internal/extop"
)

// operation adapts a Compute Engine extended operation handle to
// extop.Operation. The SDK reports a terminally failed operation as an
// error from Wait; the adapter keeps that error as the carried cause and
// reports the failure through the accessors instead, so the waiter can
// tell poll failures from operation failures.
type operation struct {
	op    *compute.Operation
	cause error
}

func newOperation(op *compute.Operation) *operation {
	return &operation{op: op}
}

func (o *operation) Name() string {
	return o.op.Name()
}

func (o *operation) Wait(ctx context.Context) error {
	err := o.op.Wait(ctx)
	if err != nil && o.op.Done() {
		o.cause = err
		return nil
	}
	return err
}

func (o *operation) ErrorCode() string {
	if p := o.op.Proto(); p != nil {
		if opErr := p.GetError(); opErr != nil && len(opErr.GetErrors()) > 0 {
			if code := opErr.GetErrors()[0].GetCode(); code != "" {
				return code
			}
		}
		if code := p.GetHttpErrorStatusCode(); code >= 400 {
			return strconv.Itoa(int(code))
		}
	}
	if o.cause != nil {
		return "UNKNOWN"
	}
	return ""
}

func (o *operation) ErrorMessage() string {
	if p := o.op.Proto(); p != nil {
		if opErr := p.GetError(); opErr != nil && len(opErr.GetErrors()) > 0 {
			if msg := opErr.GetErrors()[0].GetMessage(); msg != "" {
				return msg
			}
		}
		if msg := p.GetHttpErrorMessage(); msg != "" {
			return msg
		}
	}
	if o.cause != nil {
		return o.cause.Error()
	}
	return ""
}

func (o *operation) Cause() error {
	return o.cause
}

func (o *operation) Warnings() []extop.Warning {
	p := o.op.Proto()
	if p == nil || len(p.GetWarnings()) == 0 {
		return nil
	}

	warnings := make([]extop.Warning, 0, len(p.GetWarnings()))
	for _, w := range p.GetWarnings() {
		warnings = append(warnings, extop.Warning{
			Code:    w.GetCode(),
			Message: w.GetMessage(),
		})
	}
	return warnings
}

func (o *operation) Result() *computepb.Operation {
	return o.op.Proto()
}
