package payment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	MetadataNamespace   = "app_namespace"
	MetadataOwnerID     = "owner_id"
	MetadataOwnerEmail  = "owner_email"
	MetadataGoalIDs     = "goal_ids"
	MetadataAllocations = "allocations"
	MetadataAmount      = "amount"
)

var ErrMetadataInvalid = errors.New("invalid checkout metadata")

// Metadata is the application data attached to a checkout session.
type Metadata struct {
	Namespace   string
	OwnerID     string
	OwnerEmail  string
	Allocations []Allocation
}

// GoalIDs returns the goal ids in allocation order.
func (m Metadata) GoalIDs() []string {
	ids := make([]string, 0, len(m.Allocations))
	for _, a := range m.Allocations {
		ids = append(ids, a.GoalID)
	}
	return ids
}

// EncodeMetadata flattens metadata into gateway key/value pairs.
// Allocations are written as "goalID:cents" pairs separated by commas.
func EncodeMetadata(m Metadata) map[string]string {
	pairs := make([]string, 0, len(m.Allocations))
	for _, a := range m.Allocations {
		pairs = append(pairs, a.GoalID+":"+strconv.FormatInt(a.Amount, 10))
	}

	out := map[string]string{
		MetadataNamespace:   m.Namespace,
		MetadataOwnerID:     m.OwnerID,
		MetadataGoalIDs:     strings.Join(m.GoalIDs(), ","),
		MetadataAllocations: strings.Join(pairs, ","),
		MetadataAmount:      strconv.FormatInt(SumAllocations(m.Allocations), 10),
	}
	if m.OwnerEmail != "" {
		out[MetadataOwnerEmail] = m.OwnerEmail
	}
	return out
}

// PeekMetadata reads the namespace and owner without validating the rest.
func PeekMetadata(values map[string]string) Metadata {
	return Metadata{
		Namespace:  values[MetadataNamespace],
		OwnerID:    values[MetadataOwnerID],
		OwnerEmail: values[MetadataOwnerEmail],
	}
}

// DecodeMetadata parses gateway metadata. Sessions created by other applications have no
// namespace and decode to an empty Namespace without error.
func DecodeMetadata(values map[string]string) (Metadata, error) {
	m := PeekMetadata(values)
	if m.Namespace == "" {
		return m, nil
	}

	raw := values[MetadataAllocations]
	if raw == "" {
		return m, fmt.Errorf("%w: missing allocations", ErrMetadataInvalid)
	}

	for _, pair := range strings.Split(raw, ",") {
		goalID, cents, ok := strings.Cut(pair, ":")
		if !ok || goalID == "" {
			return m, fmt.Errorf("%w: malformed allocation %q", ErrMetadataInvalid, pair)
		}
		amount, err := strconv.ParseInt(cents, 10, 64)
		if err != nil || amount <= 0 {
			return m, fmt.Errorf("%w: malformed allocation %q", ErrMetadataInvalid, pair)
		}
		m.Allocations = append(m.Allocations, Allocation{GoalID: goalID, Amount: amount})
	}

	if listed, ok := values[MetadataGoalIDs]; ok && listed != strings.Join(m.GoalIDs(), ",") {
		return m, fmt.Errorf("%w: goal ids %q do not match allocations", ErrMetadataInvalid, listed)
	}

	if declared, ok := values[MetadataAmount]; ok {
		total, err := strconv.ParseInt(declared, 10, 64)
		if err != nil || total != SumAllocations(m.Allocations) {
			return m, fmt.Errorf("%w: amount %q does not match allocations", ErrMetadataInvalid, declared)
		}
	}

	if m.OwnerID == "" {
		return m, fmt.Errorf("%w: missing owner", ErrMetadataInvalid)
	}

	return m, nil
}
