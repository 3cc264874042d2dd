// Package choice encodes realized mode-choice and departure-time decisions
// as tagged records.
//
// Both families are closed sum types: the unexported marker method keeps
// other packages from adding variants, and decoding rejects unknown tags.
package choice

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
)

// ModeModel identifies a mode-choice model.
type ModeModel string

const (
	ModeDeterministic ModeModel = "Deterministic"
	ModeLogit         ModeModel = "Logit"
	ModeFirst         ModeModel = "First"
)

// DepartureModel identifies a departure-time model.
type DepartureModel string

const (
	DepartureLogitModel    DepartureModel = "LogitDepartureTime"
	DepartureConstantModel DepartureModel = "ConstantDepartureTime"
)

// ParseModeModel validates a mode-choice model id.
func ParseModeModel(s string) (ModeModel, error) {
	switch m := ModeModel(s); m {
	case ModeDeterministic, ModeLogit, ModeFirst:
		return m, nil
	}
	return "", simerr.Unsupportedf("mode-choice model %q", s)
}

// ParseDepartureModel validates a departure-time model id. The short forms
// "Logit" and "Constant" are accepted as aliases.
func ParseDepartureModel(s string) (DepartureModel, error) {
	switch s {
	case string(DepartureLogitModel), "Logit":
		return DepartureLogitModel, nil
	case string(DepartureConstantModel), "Constant":
		return DepartureConstantModel, nil
	}
	return "", simerr.Unsupportedf("departure-time model %q", s)
}

// ModeChoice is a realized mode-choice record.
type ModeChoice interface {
	Model() ModeModel
	isModeChoice()
}

// Deterministic selects the mode with the highest utility, with u as the
// utility tie-breaking constant.
type Deterministic struct {
	U float64 `json:"u"`
}

// Logit selects a mode with multinomial logit probabilities.
type Logit struct {
	U  float64 `json:"u"`
	Mu float64 `json:"mu"`
}

// First always selects the first enumerated mode.
type First struct{}

func (Deterministic) Model() ModeModel { return ModeDeterministic }
func (Logit) Model() ModeModel         { return ModeLogit }
func (First) Model() ModeModel         { return ModeFirst }

func (Deterministic) isModeChoice() {}
func (Logit) isModeChoice()         {}
func (First) isModeChoice()         {}

func (d Deterministic) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"Deterministic": struct {
		U float64 `json:"u"`
	}{d.U}})
}

func (l Logit) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"Logit": struct {
		U  float64 `json:"u"`
		Mu float64 `json:"mu"`
	}{l.U, l.Mu}})
}

func (First) MarshalJSON() ([]byte, error) {
	return []byte(`"First"`), nil
}

// EncodeModeChoice builds the record for one agent from its pre-sampled
// scalars. Scalars a model does not use are ignored.
func EncodeModeChoice(model ModeModel, u, mu float64) (ModeChoice, error) {
	switch model {
	case ModeDeterministic:
		return Deterministic{U: u}, nil
	case ModeLogit:
		return Logit{U: u, Mu: mu}, nil
	case ModeFirst:
		return First{}, nil
	}
	return nil, simerr.Unsupportedf("mode-choice model %q", model)
}

// DecodeModeChoice parses a tagged mode-choice record.
func DecodeModeChoice(data []byte) (ModeChoice, error) {
	tag, body, err := splitTag(data)
	if err != nil {
		return nil, err
	}
	switch ModeModel(tag) {
	case ModeFirst:
		return First{}, nil
	case ModeDeterministic:
		var d Deterministic
		if err := json.Unmarshal(body, &d); err != nil {
			return nil, fmt.Errorf("decoding Deterministic: %w", err)
		}
		return d, nil
	case ModeLogit:
		var l Logit
		if err := json.Unmarshal(body, &l); err != nil {
			return nil, fmt.Errorf("decoding Logit: %w", err)
		}
		return l, nil
	}
	return nil, simerr.Unsupportedf("mode-choice tag %q", tag)
}

// DepartureTime is a realized departure-time record.
type DepartureTime interface {
	Model() DepartureModel
	isDepartureTime()
}

// DepartureLogit chooses the departure time with a continuous logit.
type DepartureLogit struct {
	U  float64 `json:"u"`
	Mu float64 `json:"mu"`
}

// DepartureConstant departs at a fixed time, in seconds after midnight.
type DepartureConstant struct {
	Value float64
}

func (DepartureLogit) Model() DepartureModel    { return DepartureLogitModel }
func (DepartureConstant) Model() DepartureModel { return DepartureConstantModel }

func (DepartureLogit) isDepartureTime()    {}
func (DepartureConstant) isDepartureTime() {}

func (l DepartureLogit) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"Logit": struct {
		U  float64 `json:"u"`
		Mu float64 `json:"mu"`
	}{l.U, l.Mu}})
}

func (c DepartureConstant) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]float64{"Constant": c.Value})
}

// EncodeDepartureTime builds the departure-time record for one agent.
func EncodeDepartureTime(model DepartureModel, u, mu, t float64) (DepartureTime, error) {
	switch model {
	case DepartureLogitModel:
		return DepartureLogit{U: u, Mu: mu}, nil
	case DepartureConstantModel:
		return DepartureConstant{Value: t}, nil
	}
	return nil, simerr.Unsupportedf("departure-time model %q", model)
}

// DecodeDepartureTime parses a tagged departure-time record.
func DecodeDepartureTime(data []byte) (DepartureTime, error) {
	tag, body, err := splitTag(data)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "Logit":
		var l DepartureLogit
		if err := json.Unmarshal(body, &l); err != nil {
			return nil, fmt.Errorf("decoding Logit: %w", err)
		}
		return l, nil
	case "Constant":
		var v float64
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("decoding Constant: %w", err)
		}
		return DepartureConstant{Value: v}, nil
	}
	return nil, simerr.Unsupportedf("departure-time tag %q", tag)
}

// splitTag reads an externally tagged value: either a bare string tag or an
// object with exactly one key.
func splitTag(data []byte) (string, json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return "", nil, fmt.Errorf("decoding tag: %w", err)
		}
		return tag, nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", nil, fmt.Errorf("decoding tagged value: %w", err)
	}
	if len(obj) != 1 {
		return "", nil, simerr.Assertf("tagged value must have exactly one key, got %d", len(obj))
	}
	for tag, body := range obj {
		return tag, body, nil
	}
	return "", nil, nil
}
