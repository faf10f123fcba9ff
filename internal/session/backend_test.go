package session

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	tagging map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, tagging: map[string]string{}}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	k := *in.Bucket + "/" + *in.Key
	f.objects[k] = data
	f.tagging[k] = *in.Tagging
	return &s3.PutObjectOutput{}, nil
}

type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	pk := in.Key["PK"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[*in.TableName+"/"+pk]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	pk := in.Item["PK"].(*types.AttributeValueMemberS).Value
	f.items[*in.TableName+"/"+pk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func TestS3Storage(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := NewS3Storage(client, "captures", "state")

	_, err := store.Load(ctx, HistoryKey)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, HistoryKey, []byte(`[]`)))
	require.Contains(t, client.objects, "captures/state/recentCroppedPhotos.json")
	require.Equal(t, projectTag, client.tagging["captures/state/recentCroppedPhotos.json"])

	data, err := store.Load(ctx, HistoryKey)
	require.NoError(t, err)
	require.Equal(t, `[]`, string(data))
}

func TestDynamoStorageBacksState(t *testing.T) {
	ctx := context.Background()
	client := &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
	store := NewDynamoStorage(client, "dni-capture")
	store.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	s, err := Open(ctx, store)
	require.NoError(t, err)
	_, err = s.AddCroppedPhoto(ctx, "12345678", "ANA", "https://cdn/a.jpg")
	require.NoError(t, err)

	item := client.items["dni-capture/"+HistoryKey]
	require.NotNil(t, item)
	require.Contains(t, item, "payload")
	require.Contains(t, item, "updatedAt")

	reopened, err := Open(ctx, store)
	require.NoError(t, err)
	photos := reopened.Photos()
	require.Len(t, photos, 1)
	require.Equal(t, "ANA", photos[0].DisplayName)
}
