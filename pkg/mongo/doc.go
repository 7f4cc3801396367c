// Package mongo opens the MongoDB connection that backs persistent queues.
//
// Configuration comes from MONGODB_* environment variables (see Config).
// New retries the initial connect and ping, which lets the service start
// while the database container is still booting.
//
// # Usage
//
//	var cfg mongo.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
//	db, err := mongo.NewWithDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer db.Client().Disconnect(context.Background())
//
//	store := mongostore.New(db.Collection("emails"))
//
//	health := mongo.Healthcheck(db.Client())
//
// # Error Handling
//
// Connection failures match ErrFailedToConnectToMongo with errors.Is and carry
// the driver error of the last attempt.
package mongo
