package processor

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Identity extracts the record's _id.
//
// display is the hex form for ObjectIDs and Extended JSON for anything else.
// ok is false when _id is absent, malformed, or of a type MongoDB never
// accepts as _id; such a record can be reviewed but not replaced.
func Identity(record bson.Raw) (id bson.RawValue, display string, ok bool) {
	id, err := record.LookupErr("_id")
	if err != nil {
		return bson.RawValue{}, "<no _id>", false
	}
	if err := id.Validate(); err != nil {
		return id, "<malformed _id>", false
	}

	switch id.Type {
	case bson.TypeArray, bson.TypeUndefined, bson.TypeRegex:
		return id, id.String(), false
	}

	if oid, isOID := id.ObjectIDOK(); isOID {
		return id, oid.Hex(), true
	}
	return id, id.String(), true
}
