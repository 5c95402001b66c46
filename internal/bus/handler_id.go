package bus

import "reflect"

// reflectFuncPointer gives a stable identity for a func value so Off can
// find the registrations Emit's On was given; Go func values are not
// otherwise comparable.
func reflectFuncPointer(h Handler) uintptr {
	return reflect.ValueOf(h).Pointer()
}
