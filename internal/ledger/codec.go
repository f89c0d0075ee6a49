package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack"

	"owed/internal/core"
	"owed/internal/keys"
	"owed/internal/storage"
)

const recordVersion = 1

var errMisfiled = errors.New("record does not match its key")

// debtRecord is the stored form of a core.Debt.
type debtRecord struct {
	Version  uint8  `msgpack:"v"`
	Creditor string `msgpack:"c"`
	Debtor   string `msgpack:"d"`
	UnixNano int64  `msgpack:"t"`
	Cents    int64  `msgpack:"a"`
}

type userRecord struct {
	Version   uint8 `msgpack:"v"`
	SinceNano int64 `msgpack:"s"`
}

// Entry is a debt record together with the key it is stored under.
type Entry struct {
	Key  string
	Debt core.Debt
}

func encodeDebt(d core.Debt) ([]byte, error) {
	b, err := msgpack.Marshal(&debtRecord{
		Version:  recordVersion,
		Creditor: d.Creditor,
		Debtor:   d.Debtor,
		UnixNano: d.Time.UnixNano(),
		Cents:    d.Amount.Cents(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode debt: %w", err)
	}
	return b, nil
}

func decodeDebt(b []byte) (core.Debt, error) {
	var rec debtRecord
	if err := msgpack.Unmarshal(b, &rec); err != nil {
		return core.Debt{}, err
	}
	if rec.Version != recordVersion {
		return core.Debt{}, fmt.Errorf("unsupported record version %d", rec.Version)
	}
	return core.NewDebt(rec.Creditor, rec.Debtor, time.Unix(0, rec.UnixNano).UTC(), core.FromCents(rec.Cents)), nil
}

// decodeEntry decodes a debt pair read from the store and checks it is filed
// under its creditor at its own timestamp.
func decodeEntry(kv storage.KV) (Entry, error) {
	key := string(kv.Key)
	user, at, err := keys.Decode(kv.Key)
	if err != nil {
		return Entry{}, &EncodingError{Key: key, Err: err}
	}
	d, err := decodeDebt(kv.Value)
	if err != nil {
		return Entry{}, &EncodingError{Key: key, Err: err}
	}
	if err := d.Validate(); err != nil {
		return Entry{}, &EncodingError{Key: key, Err: err}
	}
	if d.Creditor != user || !d.Time.Equal(at) {
		return Entry{}, &EncodingError{Key: key, Err: errMisfiled}
	}
	return Entry{Key: key, Debt: d}, nil
}

func encodeUser(since time.Time) ([]byte, error) {
	b, err := msgpack.Marshal(&userRecord{Version: recordVersion, SinceNano: since.UnixNano()})
	if err != nil {
		return nil, fmt.Errorf("encode user: %w", err)
	}
	return b, nil
}

func decodeUser(key, value []byte) (User, error) {
	name, err := keys.UserFromKey(key)
	if err != nil {
		return User{}, &EncodingError{Key: string(key), Err: err}
	}
	var rec userRecord
	if err := msgpack.Unmarshal(value, &rec); err != nil {
		return User{}, &EncodingError{Key: string(key), Err: err}
	}
	if rec.Version != recordVersion {
		return User{}, &EncodingError{Key: string(key), Err: fmt.Errorf("unsupported record version %d", rec.Version)}
	}
	return User{Name: name, Since: time.Unix(0, rec.SinceNano).UTC()}, nil
}
