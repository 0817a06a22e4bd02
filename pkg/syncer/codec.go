package syncer

import (
	"encoding/json"

	"github.com/bobboyms/git-storage/pkg/record"
)

func unmarshalBucket(data []byte, out *map[string]*record.Record) error {
	return json.Unmarshal(data, out)
}
