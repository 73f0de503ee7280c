package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RemoteFile 是远端返回的文件位置信息。Raw 保留远端响应的全部字段。
type RemoteFile struct {
	URL         string
	S3Key       string
	Bucket      string
	StoredName  string
	Size        *int64
	ContentType string
	Raw         map[string]any
}

type remoteFileWire struct {
	URL         string       `json:"url"`
	S3Key       string       `json:"s3Key"`
	Bucket      string       `json:"bucket"`
	StoredName  string       `json:"storedName"`
	Size        *json.Number `json:"size"`
	ContentType string       `json:"contentType"`
}

func decodeRemoteFile(raw json.RawMessage) (*RemoteFile, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("response has no file information")
	}

	var wire remoteFileWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode file information: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	all := map[string]any{}
	if err := dec.Decode(&all); err != nil {
		return nil, fmt.Errorf("decode file information: %w", err)
	}

	rf := &RemoteFile{
		URL:         wire.URL,
		S3Key:       wire.S3Key,
		Bucket:      wire.Bucket,
		StoredName:  wire.StoredName,
		ContentType: wire.ContentType,
		Raw:         all,
	}
	if wire.Size != nil {
		if n, err := wire.Size.Int64(); err == nil {
			rf.Size = &n
		} else if f, err := wire.Size.Float64(); err == nil {
			n := int64(f)
			rf.Size = &n
		}
	}
	return rf, nil
}

// Fields 返回远端原始字段与规范字段的并集，规范字段覆盖同名原始字段。
func (f *RemoteFile) Fields() map[string]any {
	out := make(map[string]any, len(f.Raw)+6)
	for k, v := range f.Raw {
		out[k] = v
	}
	out["url"] = f.URL
	out["s3Key"] = f.S3Key
	out["bucket"] = f.Bucket
	out["storedName"] = f.StoredName
	if f.Size != nil {
		out["size"] = *f.Size
	}
	if f.ContentType != "" {
		out["contentType"] = f.ContentType
	}
	return out
}

// MarshalJSON 输出 Fields()，保证结果是远端响应的超集。
func (f *RemoteFile) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Fields())
}
