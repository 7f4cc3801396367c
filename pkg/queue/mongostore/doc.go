// Package mongostore stores queue messages in MongoDB.
//
// Each queue owns one collection. A message document looks like:
//
//	{
//	  _id:     ObjectId,   // insertion order
//	  payload: BinData,    // JSON bytes as given to Queue.Add
//	  visible: Date,       // availability time or lease deadline, unset once done
//	  ack:     "…",        // lease token, unset when not leased
//	  tries:   1,
//	  deleted: Date,       // set when finalized
//	  created: Date
//	}
//
// Claims are a single findOneAndUpdate sorted by {visible: 1, _id: 1}, so
// any number of processes can share the collection.
//
// Usage:
//
//	db, err := mongo.NewWithDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	store, err := mongostore.New(db.Collection("emails"), mongostore.WithDoneTTL(24*time.Hour))
//	if err != nil {
//		return err
//	}
//	q, err := queue.New(store, "emails")
//	if err != nil {
//		return err
//	}
//	if err := q.EnsureIndexes(ctx); err != nil {
//		return err
//	}
package mongostore
