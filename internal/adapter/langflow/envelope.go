package langflow

import (
	"encoding/json"
	"fmt"

	"flowrelay/internal/domain"
)

// runEnvelope mirrors the backend's nested reply shape:
// outputs[0].outputs[0].results.message.text. Text is a pointer so an
// absent field stays distinct from an empty reply.
type runEnvelope struct {
	Outputs []struct {
		Outputs []struct {
			Results struct {
				Message struct {
					Text *string `json:"text"`
				} `json:"message"`
			} `json:"results"`
		} `json:"outputs"`
	} `json:"outputs"`
}

// ExtractReply pulls the reply text out of a raw backend response body.
// An unparseable body or a missing extraction path returns
// domain.ErrMalformedReply; an empty reply string is a valid success.
func ExtractReply(raw []byte) (string, error) {
	var env runEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", domain.NewDomainError("ExtractReply", domain.ErrMalformedReply,
			fmt.Sprintf("parse response: %v", err))
	}

	if len(env.Outputs) == 0 || len(env.Outputs[0].Outputs) == 0 {
		return "", domain.NewDomainError("ExtractReply", domain.ErrMalformedReply,
			"outputs path missing")
	}
	text := env.Outputs[0].Outputs[0].Results.Message.Text
	if text == nil {
		return "", domain.NewDomainError("ExtractReply", domain.ErrMalformedReply,
			"results.message.text missing")
	}
	return *text, nil
}
