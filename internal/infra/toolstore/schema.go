package toolstore

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

const (
	schemaVersion = 1

	rootBucketName  = "mcpbridge"
	metaBucketName  = "meta"
	toolsBucketName = "tools"
	namesBucketName = "names"
	versionKey      = "version"
)

func ensureSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(rootBucketName))
		if err != nil {
			return fmt.Errorf("create root bucket: %w", err)
		}
		meta, err := root.CreateBucketIfNotExists([]byte(metaBucketName))
		if err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		if _, err := root.CreateBucketIfNotExists([]byte(toolsBucketName)); err != nil {
			return fmt.Errorf("create tools bucket: %w", err)
		}
		if _, err := root.CreateBucketIfNotExists([]byte(namesBucketName)); err != nil {
			return fmt.Errorf("create names bucket: %w", err)
		}

		current := readSchemaVersion(meta)
		switch {
		case current == 0:
			return writeSchemaVersion(meta, schemaVersion)
		case current > schemaVersion:
			return fmt.Errorf("unsupported tool store schema version %d", current)
		case current < schemaVersion:
			return fmt.Errorf("missing migration path from %d to %d", current, schemaVersion)
		default:
			return nil
		}
	})
}

func readSchemaVersion(meta *bolt.Bucket) int {
	if meta == nil {
		return 0
	}
	raw := meta.Get([]byte(versionKey))
	if len(raw) != 8 {
		return 0
	}
	return int(binary.BigEndian.Uint64(raw))
}

func writeSchemaVersion(meta *bolt.Bucket, version int) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(version))
	return meta.Put([]byte(versionKey), buf)
}

type buckets struct {
	tools *bolt.Bucket
	names *bolt.Bucket
}

func openBuckets(tx *bolt.Tx) (buckets, error) {
	root := tx.Bucket([]byte(rootBucketName))
	if root == nil {
		return buckets{}, fmt.Errorf("missing root bucket")
	}
	out := buckets{
		tools: root.Bucket([]byte(toolsBucketName)),
		names: root.Bucket([]byte(namesBucketName)),
	}
	if out.tools == nil || out.names == nil {
		return buckets{}, fmt.Errorf("missing tool buckets")
	}
	return out, nil
}
