// Package blob stores custom banner images in Azure Blob Storage.
package blob

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	azb "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"weekplan/domain"
)

// DefaultMaxBytes caps decoded image size.
const DefaultMaxBytes = 5 << 20

// sasLifetime bounds generated read URLs when no public base URL is configured.
const sasLifetime = 365 * 24 * time.Hour

var (
	ErrNotImage = &domain.ValidationError{Field: "mimeType", Reason: "must be an image/* type"}
	ErrTooLarge = &domain.ValidationError{Field: "imageBase64", Reason: "image exceeds size limit"}
	ErrEmpty    = &domain.ValidationError{Field: "imageBase64", Reason: "must not be empty"}
)

type uploader interface {
	UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// Images uploads images under custom-content/{user}/{week}-{uuid}.{ext}.
type Images struct {
	client    uploader
	container string
	maxBytes  int
	// urlFor returns the address clients use to read an uploaded blob.
	urlFor func(name string) (string, error)
}

// Open connects to the account in connStr. When publicURL is empty, returned
// URLs are read-only SAS links signed with the account key.
func Open(connStr, container, publicURL string, maxBytes int) (*Images, error) {
	opts := azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	client, err := azblob.NewClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	img := &Images{client: client, container: container, maxBytes: maxBytes}
	if publicURL != "" {
		img.urlFor = publicURLFor(publicURL)
	} else {
		cc := client.ServiceClient().NewContainerClient(container)
		img.urlFor = func(name string) (string, error) {
			return cc.NewBlobClient(name).GetSASURL(sas.BlobPermissions{Read: true}, time.Now().Add(sasLifetime), nil)
		}
	}
	if img.maxBytes <= 0 {
		img.maxBytes = DefaultMaxBytes
	}
	return img, nil
}

// CreateContainer makes sure the image container exists.
func CreateContainer(ctx context.Context, connStr, container string) error {
	client, err := azblob.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	_, err = client.CreateContainer(ctx, container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return err
	}
	return nil
}

func publicURLFor(base string) func(string) (string, error) {
	base = strings.TrimRight(base, "/")
	return func(name string) (string, error) {
		return base + "/" + (&url.URL{Path: name}).EscapedPath(), nil
	}
}

// Upload decodes a base64 image (a data URL prefix is allowed) and stores it.
func (s *Images) Upload(ctx context.Context, userID, weekID, imageBase64, mimeType string) (string, error) {
	if err := domain.ValidateWeekID(weekID); err != nil {
		return "", err
	}
	data, ext, err := Decode(imageBase64, mimeType, s.maxBytes)
	if err != nil {
		return "", err
	}
	name := BlobName(userID, weekID, ext)
	ct := mimeType
	_, err = s.client.UploadBuffer(ctx, s.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &azb.HTTPHeaders{BlobContentType: &ct},
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	log.WithFields(log.Fields{"user": userID, "week": weekID, "bytes": len(data)}).Debug("custom image stored")
	return s.urlFor(name)
}

// BlobName builds a unique name for one upload.
func BlobName(userID, weekID, ext string) string {
	return fmt.Sprintf("custom-content/%s/%s-%s.%s", userID, weekID, uuid.NewString(), ext)
}

// Decode validates the mime type and returns the raw bytes with a file extension.
func Decode(imageBase64, mimeType string, maxBytes int) ([]byte, string, error) {
	ext, ok := extension(mimeType)
	if !ok {
		return nil, "", ErrNotImage
	}
	raw := strings.TrimSpace(imageBase64)
	if i := strings.Index(raw, ";base64,"); strings.HasPrefix(raw, "data:") && i >= 0 {
		raw = raw[i+len(";base64,"):]
	}
	if raw == "" {
		return nil, "", ErrEmpty
	}
	if maxBytes > 0 && base64.StdEncoding.DecodedLen(len(raw)) > maxBytes+2 {
		return nil, "", ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", &domain.ValidationError{Field: "imageBase64", Reason: "invalid base64"}
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, "", ErrTooLarge
	}
	return data, ext, nil
}

func extension(mimeType string) (string, bool) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	sub, ok := strings.CutPrefix(mt, "image/")
	if !ok || sub == "" {
		return "", false
	}
	switch sub {
	case "jpeg", "pjpeg":
		return "jpg", true
	case "svg+xml":
		return "svg", true
	case "x-icon", "vnd.microsoft.icon":
		return "ico", true
	}
	if strings.ContainsAny(sub, "/+. ") {
		return "", false
	}
	return sub, true
}
