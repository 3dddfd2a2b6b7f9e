package s3api

import (
	"encoding/xml"
	"io"
	"net/http"
	"time"

	"s3box/internal/s3err"
)

// S3 operation names, used as the `action` half of a credential's
// permission rules.
const (
	actionListBuckets            = "ListBuckets"
	actionCreateBucket           = "CreateBucket"
	actionDeleteBucket           = "DeleteBucket"
	actionHeadBucket             = "HeadBucket"
	actionListObjects            = "ListObjects"
	actionListMultipartUploads   = "ListMultipartUploads"
	actionGetObject              = "GetObject"
	actionHeadObject             = "HeadObject"
	actionPutObject              = "PutObject"
	actionDeleteObject           = "DeleteObject"
	actionDeleteObjects          = "DeleteObjects"
	actionCopyObject             = "CopyObject"
	actionGetObjectTagging       = "GetObjectTagging"
	actionPutObjectTagging       = "PutObjectTagging"
	actionDeleteObjectTagging    = "DeleteObjectTagging"
	actionGetBucketTagging       = "GetBucketTagging"
	actionPutBucketTagging       = "PutBucketTagging"
	actionDeleteBucketTagging    = "DeleteBucketTagging"
	actionGetBucketLocation      = "GetBucketLocation"
	actionInitiateMultipart      = "InitiateMultipartUpload"
	actionUploadPart             = "UploadPart"
	actionCompleteMultipart      = "CompleteMultipartUpload"
	actionAbortMultipart         = "AbortMultipartUpload"
	actionListParts              = "ListParts"
)

func writeXML(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, xml.Header)
	enc := xml.NewEncoder(w)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	s3err.Write(w, requestID(), s3err.MapError(err), r.URL.Path)
}

func rfc1123(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

func iso8601(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func bucketResource(bucket string) string {
	return bucket
}

func keyResource(bucket, key string) string {
	return bucket + "/" + key
}
