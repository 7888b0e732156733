package media

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"drinkwise/api/internal/apperr"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name        string
		owner       string
		contentType string
		size        int64
		want        apperr.Kind
	}{
		{name: "no owner", owner: "", contentType: "image/png", size: 10, want: apperr.Unauthenticated},
		{name: "bad type", owner: "alice", contentType: "text/plain", size: 10, want: apperr.InvalidArgument},
		{name: "empty", owner: "alice", contentType: "image/png", size: 0, want: apperr.InvalidArgument},
		{name: "too large", owner: "alice", contentType: "image/png", size: MaxObjectSize + 1, want: apperr.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := objectKey(tt.owner, tt.contentType, tt.size); !errors.Is(err, tt.want) {
				t.Fatalf("expected %s, got %v", tt.want, err)
			}
		})
	}

	key, err := objectKey("alice", "image/jpeg", 1024)
	if err != nil {
		t.Fatalf("objectKey: %v", err)
	}
	if !strings.HasPrefix(key, "parties/alice/") || !strings.HasSuffix(key, ".jpg") {
		t.Fatalf("unexpected key %s", key)
	}
}

func TestURLIsPresignedLocally(t *testing.T) {
	client, err := minio.New("127.0.0.1:1", &minio.Options{
		Creds:  credentials.NewStaticV4("access", "secret", ""),
		Region: region,
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	s := NewWithClient(client, "photos", 5*time.Minute)

	url, err := s.URL(context.Background(), "parties/alice/abc.jpg")
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if !strings.Contains(url, "/photos/parties/alice/abc.jpg") || !strings.Contains(url, "X-Amz-Expires=300") {
		t.Fatalf("unexpected presigned url %s", url)
	}
}

func TestGetRejectsForeignKeys(t *testing.T) {
	s := NewWithClient(nil, "photos", 0)
	if _, _, err := s.Get(context.Background(), "../secrets"); !errors.Is(err, apperr.InvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}
