package models

// UploadRequest is a document upload handed to the catalog: raw content plus
// the user-facing metadata. OriginalName is what retrieval results report as
// the source; the stored file name is chosen by the catalog.
type UploadRequest struct {
	OriginalName string
	Content      []byte
	Title        string
	Description  string
	Tags         []string
}
