package memory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityType classifies a named entity.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityPlace        EntityType = "place"
	EntityOrganization EntityType = "organization"
	EntityDate         EntityType = "date"
	EntityTime         EntityType = "time"
	EntityMoney        EntityType = "money"
	EntityContact      EntityType = "contact"
	EntityURL          EntityType = "url"
	EntityOther        EntityType = "other"
)

// ParseEntityType maps a label onto an EntityType. Unknown labels become
// EntityOther rather than failing the memory.
func ParseEntityType(s string) EntityType {
	switch t := EntityType(strings.ToLower(strings.TrimSpace(s))); t {
	case EntityPerson, EntityPlace, EntityOrganization, EntityDate, EntityTime,
		EntityMoney, EntityContact, EntityURL:
		return t
	case "location":
		return EntityPlace
	case "org", "company":
		return EntityOrganization
	case "email", "phone":
		return EntityContact
	}
	return EntityOther
}

// EntityRef is an entity mention as it appears on a Memory.
type EntityRef struct {
	Name string     `json:"name"`
	Type EntityType `json:"type"`
}

// Entity is a graph node shared by every memory of one owner that mentions it.
type Entity struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Name         string     `json:"name"`
	Type         EntityType `json:"type"`
	FirstSeenAt  time.Time  `json:"first_seen_at"`
	MentionCount int64      `json:"mention_count"`
}

// entityNamespace scopes deterministic entity IDs.
var entityNamespace = uuid.MustParse("6b1f8f0e-6a43-4b0e-9d4e-2f5c1b7d3a90")

// NormalizeName trims, collapses internal whitespace and lower-cases an
// entity name. Two refs with equal normalized names and types are the same
// entity.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// EntityID derives the stable node ID for (owner, name, type).
func EntityID(ownerID, name string, typ EntityType) string {
	key := ownerID + "\x00" + string(typ) + "\x00" + NormalizeName(name)
	return uuid.NewSHA1(entityNamespace, []byte(key)).String()
}

// UniqueRefs collapses refs that normalize to the same (name, type), keeping
// the first mention's spelling with whitespace tidied. Empty names are
// dropped and mention order is preserved.
func UniqueRefs(refs []EntityRef) []EntityRef {
	seen := make(map[EntityRef]struct{}, len(refs))
	out := make([]EntityRef, 0, len(refs))
	for _, r := range refs {
		typ := ParseEntityType(string(r.Type))
		key := EntityRef{Name: NormalizeName(r.Name), Type: typ}
		if key.Name == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, EntityRef{Name: strings.Join(strings.Fields(r.Name), " "), Type: typ})
	}
	return out
}
