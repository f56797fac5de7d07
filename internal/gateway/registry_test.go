package gateway

import (
	"context"
	"errors"
	"testing"
)

type stubGateway struct {
	code     string
	required []string
}

func (g *stubGateway) Code() string             { return g.code }
func (g *stubGateway) RequiredConfig() []string { return g.required }

func (g *stubGateway) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	return &SubmitResult{Kind: "qrcode", QRContent: "stub"}, nil
}

func (g *stubGateway) Notify(ctx context.Context, req *NotifyRequest) (*NotifyResult, error) {
	return &NotifyResult{Succeeded: true, AckBody: "success"}, nil
}

func (g *stubGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	return &RefundResult{Succeeded: true}, nil
}

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&stubGateway{code: "StubPay"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if _, err := registry.Resolve("stubpay"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if _, err := registry.Resolve("nope"); !errors.Is(err, ErrUnknownGateway) {
		t.Fatalf("unknown code error = %v", err)
	}
	if err := registry.Register(&stubGateway{code: "stubpay"}); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("duplicate register error = %v", err)
	}
}

func TestRegistryValidateAccountConfig(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&stubGateway{
		code:     "stubpay",
		required: []string{"partner_id", "secret_key"},
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	ok := map[string]interface{}{"partner_id": "p1", "secret_key": "k1", "extra": ""}
	if err := registry.ValidateAccountConfig("stubpay", ok); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	missing := map[string]interface{}{"partner_id": "p1"}
	if err := registry.ValidateAccountConfig("stubpay", missing); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("missing field error = %v", err)
	}

	empty := map[string]interface{}{"partner_id": "p1", "secret_key": "   "}
	if err := registry.ValidateAccountConfig("stubpay", empty); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("empty field error = %v", err)
	}

	if err := registry.ValidateAccountConfig("ghost", ok); !errors.Is(err, ErrUnknownGateway) {
		t.Fatalf("unknown gateway error = %v", err)
	}
}
