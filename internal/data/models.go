package data

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Row holds the columns every persisted record carries: a store-generated
// opaque identifier and a creation timestamp.
type Row struct {
	ID      string    `gorm:"primaryKey;size:36"`
	AddedAt time.Time `gorm:"autoCreateTime"`
}

// BeforeCreate assigns a fresh UUID when none was set by the caller.
func (r *Row) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Entity holds the name column shared by the reconciled entity kinds.
// Names are mutable (the remote allows renames); identity is the ExtID.
type Entity struct {
	Row
	Name string `gorm:"not null;index"`
}

// External holds the remote system's integer identifier. It is the
// idempotency key for reconciliation, independently unique per entity kind.
type External struct {
	ExtID int64 `gorm:"uniqueIndex;not null"`
}

// Organisation represents a GitHub organisation.
type Organisation struct {
	Entity
	External
	Users []User `gorm:"many2many:organisation_user"`
	Teams []Team `gorm:"foreignKey:OrgID"`
	Repos []Repo `gorm:"foreignKey:OrgID"`
}

// Team represents a team within one organisation.
type Team struct {
	Entity
	External
	OrgID string `gorm:"size:36;index;not null"`
	Users []User `gorm:"many2many:team_user"`
}

// User represents a GitHub account.
type User struct {
	Entity
	External
	Orgs   []Organisation `gorm:"many2many:organisation_user"`
	Teams  []Team         `gorm:"many2many:team_user"`
	Emails []Email        `gorm:"foreignKey:UserID"`
}

// Email is a commit email address. UserID stays null until the owning user
// is resolved; once linked it is never rewritten.
type Email struct {
	Row
	Address string  `gorm:"uniqueIndex;not null"`
	UserID  *string `gorm:"size:36;index"`
}

// Repo represents a repository owned by one organisation. Its name is unique
// only within that organisation.
type Repo struct {
	Entity
	External
	OrgID   string   `gorm:"size:36;index;not null"`
	Commits []Commit `gorm:"foreignKey:RepoID"`
	Refs    []Ref    `gorm:"foreignKey:RepoID"`
}

// Commit represents a single commit. SHA is the 40-byte hex content hash and
// is unique across the whole store; it is the ingestion idempotency key.
// A row with a nil SyncedAt is a placeholder created to anchor a parent edge
// before the commit's own detail has been ingested.
type Commit struct {
	Row
	SHA              []byte `gorm:"uniqueIndex;not null"`
	Message          string
	RepoID           string `gorm:"size:36;index;not null"`
	AuthorID         *string
	CommitterID      *string
	AuthorEmailID    *string
	CommitterEmailID *string
	AuthoredAt       *time.Time
	CommittedAt      *time.Time
	Additions        int
	Deletions        int
	SyncedAt         *time.Time
	Files            []File `gorm:"foreignKey:CommitID"`
}

// CommitParent is one directed edge of the commit graph: child has parent.
// The edge set is kept as an explicit adjacency table rather than an object
// association so graph traversal stays a plain query.
type CommitParent struct {
	ChildID  string `gorm:"primaryKey;size:36"`
	ParentID string `gorm:"primaryKey;size:36"`
}

// File is one changed file within a commit.
type File struct {
	Row
	CommitID  string `gorm:"size:36;index;not null"`
	Filename  string `gorm:"not null"`
	Status    string
	Additions int
	Deletions int
}

// Ref is a named pointer (branch) within a repository. HeadID stays null
// until the head commit is locally known.
type Ref struct {
	Row
	Name   string  `gorm:"not null"`
	RepoID string  `gorm:"size:36;index;not null"`
	HeadID *string `gorm:"size:36"`
}
