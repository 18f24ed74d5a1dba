package firebase

import "mime/multipart"

// StorageClient abstracts Firebase Storage operations for dependency
// injection and testing.
type StorageClient interface {
	UploadReceiptImage(file multipart.File, userID, filename, contentType string) (string, error)
	UploadRewardImage(file multipart.File, filename, contentType string) (string, error)
	DeleteFile(objectPath string) error
}

// FirebaseStorageClient is the real implementation that delegates to
// package-level functions.
type FirebaseStorageClient struct{}

func NewStorageClient() StorageClient {
	return &FirebaseStorageClient{}
}

func (f *FirebaseStorageClient) UploadReceiptImage(file multipart.File, userID, filename, contentType string) (string, error) {
	return UploadReceiptImage(file, userID, filename, contentType)
}

func (f *FirebaseStorageClient) UploadRewardImage(file multipart.File, filename, contentType string) (string, error) {
	return UploadRewardImage(file, filename, contentType)
}

func (f *FirebaseStorageClient) DeleteFile(objectPath string) error {
	return DeleteFile(objectPath)
}
