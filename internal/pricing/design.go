package pricing

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/printhouse/textile-erp/internal/shared"
)

// DesignKind discriminates design choices.
type DesignKind string

const (
	DesignExisting DesignKind = "existing"
	DesignUpload   DesignKind = "upload"
	DesignRepeat   DesignKind = "repeat"
)

// DesignChoice is one of ExistingDesign, UploadedDesign or RepeatDesign.
type DesignChoice interface {
	Kind() DesignKind
	// Ref identifies the design for production: preset id, file reference or source order.
	Ref() string
	isDesignChoice()
}

// ExistingDesign picks a preset from the catalog.
type ExistingDesign struct {
	PresetID int64
}

// UploadedDesign is customer artwork already stored by the upload service.
type UploadedDesign struct {
	FileRef string
}

// RepeatDesign reuses the artwork of an earlier order.
type RepeatDesign struct {
	SourceOrderID int64
}

func (ExistingDesign) Kind() DesignKind { return DesignExisting }
func (d ExistingDesign) Ref() string { return "preset:" + strconv.FormatInt(d.PresetID, 10) }
func (ExistingDesign) isDesignChoice() {}
func (UploadedDesign) Kind() DesignKind { return DesignUpload }
func (d UploadedDesign) Ref() string { return "upload:" + d.FileRef }
func (UploadedDesign) isDesignChoice() {}
func (RepeatDesign) Kind() DesignKind { return DesignRepeat }
func (d RepeatDesign) Ref() string { return "repeat:" + strconv.FormatInt(d.SourceOrderID, 10) }
func (RepeatDesign) isDesignChoice() {}

// DesignInput is the flat wire and storage form of a DesignChoice.
type DesignInput struct {
	Kind          DesignKind `json:"kind" validate:"required,oneof=existing upload repeat"`
	PresetID      *int64     `json:"preset_id,omitempty"`
	FileRef       string     `json:"file_ref,omitempty"`
	SourceOrderID *int64     `json:"source_order_id,omitempty"`
}

// Choice converts the flat form, rejecting payloads that carry fields of
// another variant.
func (in DesignInput) Choice() (DesignChoice, error) {
	switch in.Kind {
	case DesignExisting:
		if in.FileRef != "" || in.SourceOrderID != nil {
			return nil, mixedPayload("design", in.Kind)
		}
		if in.PresetID == nil || *in.PresetID <= 0 {
			return nil, fmt.Errorf("%w: preset_id", ErrIncompleteSelection)
		}
		return ExistingDesign{PresetID: *in.PresetID}, nil
	case DesignUpload:
		if in.PresetID != nil || in.SourceOrderID != nil {
			return nil, mixedPayload("design", in.Kind)
		}
		if in.FileRef == "" {
			return nil, fmt.Errorf("%w: file_ref", ErrIncompleteSelection)
		}
		return UploadedDesign{FileRef: in.FileRef}, nil
	case DesignRepeat:
		if in.PresetID != nil || in.FileRef != "" {
			return nil, mixedPayload("design", in.Kind)
		}
		if in.SourceOrderID == nil || *in.SourceOrderID <= 0 {
			return nil, fmt.Errorf("%w: source_order_id", ErrIncompleteSelection)
		}
		return RepeatDesign{SourceOrderID: *in.SourceOrderID}, nil
	case "":
		return nil, fmt.Errorf("%w: design", ErrIncompleteSelection)
	default:
		return nil, fmt.Errorf("%w: unknown design kind %q", shared.ErrValidation, in.Kind)
	}
}

// EncodeDesign flattens a choice. A nil choice yields the zero DesignInput.
func EncodeDesign(d DesignChoice) DesignInput {
	switch v := d.(type) {
	case ExistingDesign:
		id := v.PresetID
		return DesignInput{Kind: DesignExisting, PresetID: &id}
	case UploadedDesign:
		return DesignInput{Kind: DesignUpload, FileRef: v.FileRef}
	case RepeatDesign:
		id := v.SourceOrderID
		return DesignInput{Kind: DesignRepeat, SourceOrderID: &id}
	default:
		return DesignInput{}
	}
}

// MarshalDesign encodes a choice for a JSON column.
func MarshalDesign(d DesignChoice) ([]byte, error) {
	return json.Marshal(EncodeDesign(d))
}

// UnmarshalDesign decodes a JSON column written by MarshalDesign.
func UnmarshalDesign(raw []byte) (DesignChoice, error) {
	var in DesignInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("pricing: decode design: %w", err)
	}
	return in.Choice()
}

func mixedPayload(what string, kind any) error {
	return fmt.Errorf("%w: %s %q carries fields of another variant", shared.ErrValidation, what, kind)
}
