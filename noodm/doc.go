// Package noodm is an embedded document store. A Database holds named
// collections of schema-optional documents in memory and writes the whole
// snapshot through a storage.Adapter after every mutation.
//
// Collections maintain secondary indexes for declared fields, reject
// duplicate values of unique fields and validate documents against their
// field descriptors. Every operation runs through a pre/post hook pipeline:
//
//	db, err := noodm.Open(ctx, storage.NewJSONAdapter("app.json"))
//	users, err := db.CollectionFor(types.NewSchema("users").
//		Field("email", types.NewField().Type(types.TagString).Unique()).
//		Build())
//	users.OnPreInsert(func(ctx context.Context, req *noodm.InsertRequest) error {
//		return nil
//	})
//	id, err := users.Insert(ctx, types.Document{"email": types.String("ada@example.com")})
//
// Find and Update take a types.Cond. Equality on an indexed field or on _id
// narrows the scan through the index; every other expectation is checked
// against the decoded documents.
package noodm
