package pricing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/printhouse/textile-erp/internal/shared"
)

// ErrIncompleteSelection marks a design or fabric selection with required parts missing.
var ErrIncompleteSelection = fmt.Errorf("%w: selection incomplete", shared.ErrValidation)

// FabricType is the print process family of a fabric.
type FabricType string

const (
	FabricSublimation FabricType = "sublimation"
	FabricNatural     FabricType = "natural"
)

// IsValid reports whether t is a known fabric type.
func (t FabricType) IsValid() bool {
	return t == FabricSublimation || t == FabricNatural
}

// OrderType separates sample runs from production orders.
type OrderType string

const (
	OrderSample OrderType = "sample"
	OrderFull   OrderType = "order"
)

// IsValid reports whether t is a known order type.
func (t OrderType) IsValid() bool {
	return t == OrderSample || t == OrderFull
}

// SourceKind discriminates fabric sources.
type SourceKind string

const (
	SourceCustomer SourceKind = "customer"
	SourceFactory  SourceKind = "factory"
	SourceNotSure  SourceKind = "not_sure"
)

// FabricSource is one of FactorySource, CustomerSource or UnsureSource.
type FabricSource interface {
	Kind() SourceKind
	isFabricSource()
}

// FactorySource means the factory supplies a catalog fabric.
type FactorySource struct {
	FabricID int64
}

// CustomerSource means the customer brings their own fabric.
type CustomerSource struct {
	Notes string
}

// UnsureSource means the customer needs advice before choosing.
type UnsureSource struct {
	Inquiry string
}

func (FactorySource) Kind() SourceKind { return SourceFactory }
func (FactorySource) isFabricSource() {}
func (CustomerSource) Kind() SourceKind { return SourceCustomer }
func (CustomerSource) isFabricSource() {}
func (UnsureSource) Kind() SourceKind { return SourceNotSure }
func (UnsureSource) isFabricSource() {}

// FabricChoice is the fabric half of an order line.
type FabricChoice struct {
	Type      FabricType
	OrderType OrderType
	Source    FabricSource
}

// Complete reports whether type, order type and source are all set.
func (f FabricChoice) Complete() bool {
	return f.Type.IsValid() && f.OrderType.IsValid() && f.Source != nil
}

// PriceDeferred reports whether the line must be quoted manually.
func (f FabricChoice) PriceDeferred() bool {
	if f.Source == nil {
		return false
	}
	k := f.Source.Kind()
	return k == SourceCustomer || k == SourceNotSure
}

// Descriptor is the short fabric label printed on production runs and invoices.
func (f FabricChoice) Descriptor() string {
	parts := []string{string(f.Type), string(f.OrderType)}
	switch s := f.Source.(type) {
	case FactorySource:
		parts = append(parts, "factory#"+strconv.FormatInt(s.FabricID, 10))
	case CustomerSource:
		parts = append(parts, string(SourceCustomer))
	case UnsureSource:
		parts = append(parts, string(SourceNotSure))
	}
	return strings.Join(parts, "/")
}

// FabricInput is the flat wire and storage form of a FabricChoice.
type FabricInput struct {
	FabricType      FabricType `json:"fabric_type"`
	OrderType       OrderType  `json:"order_type"`
	FabricSource    SourceKind `json:"fabric_source"`
	FactoryFabricID *int64     `json:"factory_fabric_id,omitempty"`
	CustomerNotes   string     `json:"customer_notes,omitempty"`
	Inquiry         string     `json:"inquiry,omitempty"`
}

// Choice converts the flat form. Missing parts yield ErrIncompleteSelection;
// fields belonging to a different source are rejected.
func (in FabricInput) Choice() (FabricChoice, error) {
	var missing []string
	if in.FabricType == "" {
		missing = append(missing, "fabric_type")
	}
	if in.OrderType == "" {
		missing = append(missing, "order_type")
	}
	if in.FabricSource == "" {
		missing = append(missing, "fabric_source")
	}
	if len(missing) > 0 {
		return FabricChoice{}, fmt.Errorf("%w: %s", ErrIncompleteSelection, strings.Join(missing, ", "))
	}
	if !in.FabricType.IsValid() {
		return FabricChoice{}, fmt.Errorf("%w: unknown fabric_type %q", shared.ErrValidation, in.FabricType)
	}
	if !in.OrderType.IsValid() {
		return FabricChoice{}, fmt.Errorf("%w: unknown order_type %q", shared.ErrValidation, in.OrderType)
	}

	choice := FabricChoice{Type: in.FabricType, OrderType: in.OrderType}
	switch in.FabricSource {
	case SourceFactory:
		if in.CustomerNotes != "" || in.Inquiry != "" {
			return FabricChoice{}, mixedPayload("fabric_source", in.FabricSource)
		}
		if in.FactoryFabricID == nil || *in.FactoryFabricID <= 0 {
			return FabricChoice{}, fmt.Errorf("%w: factory_fabric_id", ErrIncompleteSelection)
		}
		choice.Source = FactorySource{FabricID: *in.FactoryFabricID}
	case SourceCustomer:
		if in.FactoryFabricID != nil || in.Inquiry != "" {
			return FabricChoice{}, mixedPayload("fabric_source", in.FabricSource)
		}
		choice.Source = CustomerSource{Notes: in.CustomerNotes}
	case SourceNotSure:
		if in.FactoryFabricID != nil || in.CustomerNotes != "" {
			return FabricChoice{}, mixedPayload("fabric_source", in.FabricSource)
		}
		choice.Source = UnsureSource{Inquiry: in.Inquiry}
	default:
		return FabricChoice{}, fmt.Errorf("%w: unknown fabric_source %q", shared.ErrValidation, in.FabricSource)
	}
	return choice, nil
}

// EncodeFabric flattens a choice.
func EncodeFabric(f FabricChoice) FabricInput {
	out := FabricInput{FabricType: f.Type, OrderType: f.OrderType}
	switch s := f.Source.(type) {
	case FactorySource:
		id := s.FabricID
		out.FabricSource = SourceFactory
		out.FactoryFabricID = &id
	case CustomerSource:
		out.FabricSource = SourceCustomer
		out.CustomerNotes = s.Notes
	case UnsureSource:
		out.FabricSource = SourceNotSure
		out.Inquiry = s.Inquiry
	}
	return out
}

// MarshalFabric encodes a choice for a JSON column.
func MarshalFabric(f FabricChoice) ([]byte, error) {
	return json.Marshal(EncodeFabric(f))
}

// UnmarshalFabric decodes a JSON column written by MarshalFabric.
func UnmarshalFabric(raw []byte) (FabricChoice, error) {
	var in FabricInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return FabricChoice{}, fmt.Errorf("pricing: decode fabric: %w", err)
	}
	return in.Choice()
}
