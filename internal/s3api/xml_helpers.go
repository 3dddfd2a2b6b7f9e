package s3api

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

func tagsToXML(tags map[string]string) Tagging {
	var t Tagging
	t.Xmlns = xmlNamespace
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.TagSet.Tag = append(t.TagSet.Tag, Tag{Key: k, Value: tags[k]})
	}
	return t
}

// decodeTagging parses a PutBucketTagging/PutObjectTagging request body,
// rejecting more than 50 tags and any "aws:"-prefixed key, mirroring
// eteran-silo's handlePutObjectTagging validation. Every error returned
// here is a client-side MalformedXML, handled by callers directly rather
// than through s3err.MapError's internal-error default.
func decodeTagging(r io.Reader) (map[string]string, error) {
	var t Tagging
	if err := xml.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("s3api: decoding Tagging: %w", err)
	}
	if len(t.TagSet.Tag) > 50 {
		return nil, fmt.Errorf("s3api: more than 50 tags")
	}
	tags := make(map[string]string, len(t.TagSet.Tag))
	for _, tag := range t.TagSet.Tag {
		if strings.HasPrefix(strings.ToLower(tag.Key), "aws:") {
			return nil, fmt.Errorf("s3api: reserved tag key %q", tag.Key)
		}
		tags[tag.Key] = tag.Value
	}
	return tags, nil
}

func decodeDeleteObjects(body []byte) (*DeleteObjectsRequest, error) {
	var req DeleteObjectsRequest
	if err := xml.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("s3api: decoding Delete: %w", err)
	}
	return &req, nil
}

func decodeXML(body []byte, v any) error {
	return xml.Unmarshal(body, v)
}
