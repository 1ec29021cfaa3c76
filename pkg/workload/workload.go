package workload

import "ccengine/pkg/txn"

// NewNoop builds a transaction that touches nothing and always
// commits: the minimal round trip through a Processor.
func NewNoop() *txn.Txn {
	return txn.New(nil, nil, txn.LogicFunc(func(t *txn.Txn) {
		t.Commit()
	}))
}

// NewPut builds a transaction that unconditionally writes values and
// commits.
func NewPut(values map[txn.Key]txn.Value) *txn.Txn {
	writeSet := make([]txn.Key, 0, len(values))
	for k := range values {
		writeSet = append(writeSet, k)
	}
	return txn.New(nil, writeSet, txn.LogicFunc(func(t *txn.Txn) {
		for k, v := range values {
			t.Write(k, v)
		}
		t.Commit()
	}))
}

// NewExpect builds a read-only transaction that commits iff every key
// in expected currently holds the paired value, and aborts otherwise.
func NewExpect(expected map[txn.Key]txn.Value) *txn.Txn {
	readSet := make([]txn.Key, 0, len(expected))
	for k := range expected {
		readSet = append(readSet, k)
	}
	return txn.New(readSet, nil, txn.LogicFunc(func(t *txn.Txn) {
		for k, want := range expected {
			got, ok := t.Read(k)
			if !ok || got != want {
				t.Abort()
				return
			}
		}
		t.Commit()
	}))
}

// NewRMW builds a read-modify-write transaction: every key in
// writeKeys is read, incremented by delta, and written back; every key
// in readKeys is only read, never written. Running many of these
// concurrently against the same write keys, under any discipline, is a
// standard counter-correctness test: the final value must equal the
// initial value plus (delta * number of committed transactions).
//
// Declaring both readKeys and writeKeys (rather than folding
// everything into one set) is what exercises the multi-key path
// through the Locking disciplines' admission policy — e.g. read_set =
// {1, 2}, write_set = {3} touches three keys total, so a lock denial
// on any one of them forces the release-and-restart branch rather
// than leaving the transaction queued.
func NewRMW(readKeys, writeKeys []txn.Key, delta txn.Value) *txn.Txn {
	rs := append([]txn.Key(nil), readKeys...)
	ws := append([]txn.Key(nil), writeKeys...)
	return txn.New(rs, ws, txn.LogicFunc(func(t *txn.Txn) {
		for _, k := range rs {
			t.Read(k)
		}
		for _, k := range ws {
			v, _ := t.Read(k)
			t.Write(k, v+delta)
		}
		t.Commit()
	}))
}
