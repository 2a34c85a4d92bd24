package model

import "time"

// ResourceKind identifies one of the fixed categories of scarce
// resources tracked per user. The set is closed: adding a kind means
// a migration on resource_balances plus a new constant here.
type ResourceKind string

const (
	ResourceWater    ResourceKind = "WATER"
	ResourceBread    ResourceKind = "BREAD"
	ResourceMedicine ResourceKind = "MEDICINE"
)

// ResourceKinds lists every valid kind in a stable order. Used when
// seeding a new user's ledger rows and when rendering balances.
var ResourceKinds = []ResourceKind{ResourceWater, ResourceBread, ResourceMedicine}

// Valid reports whether k is one of the known resource kinds.
func (k ResourceKind) Valid() bool {
	switch k {
	case ResourceWater, ResourceBread, ResourceMedicine:
		return true
	}
	return false
}

// ResourceBalance mirrors a row of the `resource_balances` table: the
// quantity of one resource kind held by one user. Quantity is never
// negative; the database column is UNSIGNED and every debit checks
// the balance under a row lock before updating.
//
// Fields:
//  UserID    – owner of the balance row.
//  Kind      – resource category.
//  Quantity  – non-negative amount currently held.
//  UpdatedAt – timestamp of last mutation.
type ResourceBalance struct {
	UserID    uint64       // resource_balances.user_id
	Kind      ResourceKind // resource_balances.kind
	Quantity  uint64       // resource_balances.quantity
	UpdatedAt time.Time    // resource_balances.updated_at
}

// Balances maps each resource kind to the quantity held. Kinds with
// no row yet are reported as zero once the identity itself exists.
type Balances map[ResourceKind]uint64
