package storage

import "fmt"

// RowID identifies one physical row version inside the data file:
// the page holding the row and the slot within that page.
type RowID struct {
	Page uint32
	Slot uint16
}

// InvalidRowID is the zero RowID; slot directories start at slot 0 on
// page 0, which is reserved for the meta page, so no real row maps here.
var InvalidRowID = RowID{}

func (r RowID) String() string {
	return fmt.Sprintf("%d.%d", r.Page, r.Slot)
}

// IsValid reports whether r refers to an allocatable row position.
func (r RowID) IsValid() bool {
	return r != InvalidRowID
}
