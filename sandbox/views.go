package sandbox

import (
	"fmt"
	"io"
	"strings"

	"github.com/alovak/cardflow-issuing/network"
)

const (
	pinServiceCode  = "000"
	cardServiceCode = "101"
)

// secureView is the sandbox rendering of protected card data. The content
// never leaves the view except through Render.
type secureView struct {
	kind    network.DataKind
	content string
	cfg     network.ViewConfig
}

func (v *secureView) Kind() network.DataKind { return v.kind }

func (v *secureView) Render(w io.Writer) error {
	content := v.content
	if v.cfg.Grouping && v.kind == network.DataKindPan {
		content = groupDigits(content, 4)
	}
	_, err := io.WriteString(w, content)
	return err
}

func (v *secureView) String() string {
	return fmt.Sprintf("secureView(%s)", v.kind)
}

func panView(rec *CardRecord, cfg network.ViewConfig) network.View {
	return &secureView{kind: network.DataKindPan, content: rec.PAN, cfg: cfg}
}

func (s *Service) pinView(rec *CardRecord, cfg network.ViewConfig) (network.View, error) {
	pin, err := s.cvv.ComputeCVV2(panWithoutCheckDigit(rec.PAN), rec.ExpiryYYMM, pinServiceCode, 4)
	if err != nil {
		return nil, &network.Error{Kind: network.ErrorKindSecureOperationFailure, Message: "deriving pin", Cause: err}
	}
	return &secureView{kind: network.DataKindPin, content: pin, cfg: cfg}, nil
}

func (s *Service) securityCodeView(rec *CardRecord, cfg network.ViewConfig) (network.View, error) {
	code, _, err := s.cvv.ComputeDisplayDCVV(panWithoutCheckDigit(rec.PAN), rec.ExpiryYYMM, cardServiceCode, s.cfg.SecurityCodeStep, 3)
	if err != nil {
		return nil, &network.Error{Kind: network.ErrorKindSecureOperationFailure, Message: "deriving security code", Cause: err}
	}
	return &secureView{kind: network.DataKindSecurityCode, content: code, cfg: cfg}, nil
}

func panWithoutCheckDigit(pan string) string {
	if pan == "" {
		return ""
	}
	return pan[:len(pan)-1]
}

func groupDigits(s string, size int) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && i%size == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
