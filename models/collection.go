package models

// Collection is one of the fixed storage buckets, each backed by a single directory.
type Collection struct {
	Name string
	// Dir is relative to the storage root and doubles as the public URL prefix.
	Dir string
	// Field is the multipart field name that uploads into this collection.
	Field string
}

var (
	Gallery = Collection{Name: "gallery", Dir: "uploads", Field: "image"}
	Profile = Collection{Name: "profile", Dir: "profile", Field: "profile"}
)

// Collections lists every collection the server owns.
var Collections = []Collection{Gallery, Profile}

// URL returns the public path of filename within the collection.
func (c Collection) URL(filename string) string {
	return "/" + c.Dir + "/" + filename
}
