package entitle

import "github.com/missionhub/entitle/id"

// ID is the primary identifier type for all entitle entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
