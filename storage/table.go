package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

const defaultPartition = "default"

const (
	// chunkBytes keeps every Data property under the 64 KiB string limit of
	// the Table service, which counts UTF-16 code units. A UTF-8 byte count
	// is never smaller than the UTF-16 unit count of the same text.
	chunkBytes = 30 * 1024
	// partsPerBatch keeps a transaction well under its 4 MiB payload cap even
	// when JSON escaping doubles the data.
	partsPerBatch = 24
	maxChunks     = 9999
)

// ErrValueTooLarge is returned by TableMedium.Set for values that need more
// than maxChunks chunks.
var ErrValueTooLarge = errors.New("value too large for table storage")

// entityStore is the part of *aztables.Client the medium uses.
type entityStore interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	SubmitTransaction(ctx context.Context, actions []aztables.TransactionAction, options *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
}

// TableMedium stores each value in Azure Table entities. Namespaced keys
// ("<ns>:<key>") map the namespace to the PartitionKey. The entity under the
// key holds the first chunk plus the chunk count and generation; further
// chunks live in "<key>~<gen>~<i>" rows of the same partition.
type TableMedium struct {
	table entityStore
}

type kvEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Data         string `json:"Data"`
	Chunks       int    `json:"Chunks,omitempty"`
	Gen          int    `json:"Gen,omitempty"`
}

// NewTableMedium connects to tableName, creating the table when it is missing.
func NewTableMedium(ctx context.Context, connStr, tableName string) (*TableMedium, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	client := svc.NewClient(tableName)
	if _, err := client.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
			return nil, err
		}
	}
	return &TableMedium{table: client}, nil
}

func splitKey(key string) (partition, row string) {
	if i := strings.LastIndex(key, ":"); i > 0 {
		return key[:i], key[i+1:]
	}
	return defaultPartition, key
}

func partKey(row string, gen, i int) string {
	return fmt.Sprintf("%s~%d~%04d", row, gen, i)
}

// splitChunks cuts s into pieces of at most size bytes without splitting a
// rune. It always returns at least one piece.
func splitChunks(s string, size int) []string {
	if len(s) <= size {
		return []string{s}
	}
	var out []string
	for len(s) > size {
		cut := size
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	return append(out, s)
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

func (t *TableMedium) entity(ctx context.Context, pk, rk string) (kvEntity, bool, error) {
	resp, err := t.table.GetEntity(ctx, pk, rk, nil)
	if err != nil {
		if isNotFound(err) {
			return kvEntity{}, false, nil
		}
		return kvEntity{}, false, err
	}
	var ent kvEntity
	if err := sonic.Unmarshal(resp.Value, &ent); err != nil {
		return kvEntity{}, false, err
	}
	return ent, true, nil
}

func (t *TableMedium) Get(ctx context.Context, key string) (string, bool, error) {
	pk, rk := splitKey(key)
	head, ok, err := t.entity(ctx, pk, rk)
	if err != nil || !ok {
		return "", false, err
	}
	if head.Chunks <= 1 {
		return head.Data, true, nil
	}
	var b strings.Builder
	b.WriteString(head.Data)
	for i := 1; i < head.Chunks; i++ {
		part, ok, err := t.entity(ctx, pk, partKey(rk, head.Gen, i))
		if err != nil {
			return "", false, err
		}
		if !ok {
			return "", false, fmt.Errorf("table value %s is missing chunk %d of %d", key, i, head.Chunks)
		}
		b.WriteString(part.Data)
	}
	return b.String(), true, nil
}

func (t *TableMedium) submit(ctx context.Context, actionType aztables.TransactionType, ents []kvEntity) error {
	actions := make([]aztables.TransactionAction, 0, len(ents))
	for _, e := range ents {
		payload, err := sonic.Marshal(e)
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: actionType, Entity: payload})
	}
	_, err := t.table.SubmitTransaction(ctx, actions, nil)
	return err
}

// Set writes the chunks of a new generation first and switches the head
// entity last, so readers see either the old or the new value whole.
func (t *TableMedium) Set(ctx context.Context, key, value string) error {
	chunks := splitChunks(value, chunkBytes)
	if len(chunks) > maxChunks {
		return fmt.Errorf("%w: %s is %d bytes", ErrValueTooLarge, key, len(value))
	}
	pk, rk := splitKey(key)
	old, _, err := t.entity(ctx, pk, rk)
	if err != nil {
		return err
	}
	gen := old.Gen + 1

	parts := make([]kvEntity, 0, len(chunks)-1)
	for i := 1; i < len(chunks); i++ {
		parts = append(parts, kvEntity{PartitionKey: pk, RowKey: partKey(rk, gen, i), Data: chunks[i]})
	}
	for start := 0; start < len(parts); start += partsPerBatch {
		end := min(start+partsPerBatch, len(parts))
		if err := t.submit(ctx, aztables.TransactionTypeInsertReplace, parts[start:end]); err != nil {
			return err
		}
	}
	head := kvEntity{PartitionKey: pk, RowKey: rk, Data: chunks[0], Chunks: len(chunks), Gen: gen}
	if err := t.submit(ctx, aztables.TransactionTypeInsertReplace, []kvEntity{head}); err != nil {
		return err
	}
	t.dropParts(ctx, pk, rk, old)
	return nil
}

// dropParts removes the extra chunks of a superseded head. Leftovers are
// unreachable, so failures are only logged.
func (t *TableMedium) dropParts(ctx context.Context, pk, rk string, old kvEntity) {
	for i := 1; i < old.Chunks; i++ {
		if _, err := t.table.DeleteEntity(ctx, pk, partKey(rk, old.Gen, i), nil); err != nil && !isNotFound(err) {
			log.WithError(err).WithFields(log.Fields{"partition": pk, "row": rk, "chunk": i}).Warn("stale chunk cleanup failed")
		}
	}
}

func (t *TableMedium) Delete(ctx context.Context, key string) error {
	pk, rk := splitKey(key)
	head, ok, err := t.entity(ctx, pk, rk)
	if err != nil || !ok {
		return err
	}
	if _, err := t.table.DeleteEntity(ctx, pk, rk, nil); err != nil && !isNotFound(err) {
		return err
	}
	t.dropParts(ctx, pk, rk, head)
	return nil
}
