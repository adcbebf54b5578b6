// Package etcdstore implements the store.IStore interface on top of etcd (v3 API).
//
// Every CompareAndUpdate is a single etcd transaction. For each update the transaction
// compares either the create revision of the key with 0 (key must be absent) or the value
// of the key with the expected value. Only if all comparisons hold the puts and deletes are
// applied. A transaction that did not succeed is reported as a conflict.
//
// Keys are listed with a ranged Get over the prefix (keys only).
//
// Example usage:
//
//	s, err := etcdstore.NewEtcdStore([]string{"localhost:2379"}, 5*time.Second)
//	if err != nil {
//		return err
//	}
//	defer s.Close()
package etcdstore
