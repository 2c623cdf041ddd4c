package passenger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	passengerBucketName = "passengers"
	invoiceBucketName   = "invoices"
)

var (
	// ErrPassengerNotFound is returned for an unknown passenger id
	ErrPassengerNotFound = errors.New("passenger not found")
	// ErrInvoiceNotFound is returned for an unknown invoice id
	ErrInvoiceNotFound = errors.New("invoice not found")
)

// DB defines the repository for passengers and their invoices
type DB interface {
	// CreatePassenger stores a new passenger and assigns its ID
	CreatePassenger(passenger *Passenger) error

	// GetPassenger retrieves a passenger by ID
	GetPassenger(id int) (*Passenger, error)

	// ListPassengers returns all passengers ordered by ID
	ListPassengers() ([]*Passenger, error)

	// CountPassengers returns the number of passengers
	CountPassengers() (int, error)

	// UpdatePassenger applies fn to a passenger and saves the result atomically
	UpdatePassenger(id int, fn func(*Passenger) error) error

	// AppendInvoice saves an invoice and marks its passenger Parsed in one transaction
	AppendInvoice(invoice *Invoice) error

	// GetInvoice retrieves an invoice by ID
	GetInvoice(id string) (*Invoice, error)

	// ListInvoices returns all invoices, oldest first
	ListInvoices() ([]*Invoice, error)

	// UpdateInvoice applies fn to an invoice and saves the result atomically
	UpdateInvoice(id string, fn func(*Invoice) error) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(passengerBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(invoiceBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// passengerKey encodes an ID big-endian so bucket iteration follows ID order
func passengerKey(id int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

func getPassenger(bucket *bbolt.Bucket, id int) (*Passenger, error) {
	data := bucket.Get(passengerKey(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %d", ErrPassengerNotFound, id)
	}
	var passenger Passenger
	if err := json.Unmarshal(data, &passenger); err != nil {
		return nil, fmt.Errorf("unmarshaling passenger: %w", err)
	}
	return &passenger, nil
}

func putPassenger(bucket *bbolt.Bucket, passenger *Passenger) error {
	data, err := json.Marshal(passenger)
	if err != nil {
		return fmt.Errorf("marshaling passenger: %w", err)
	}
	return bucket.Put(passengerKey(passenger.ID), data)
}

// CreatePassenger stores a new passenger under the next bucket sequence number
func (b *BoltDB) CreatePassenger(passenger *Passenger) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(passengerBucketName))
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating passenger id: %w", err)
		}
		passenger.ID = int(seq)
		return putPassenger(bucket, passenger)
	})
}

// GetPassenger retrieves a passenger by ID
func (b *BoltDB) GetPassenger(id int) (*Passenger, error) {
	var passenger *Passenger
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		passenger, err = getPassenger(tx.Bucket([]byte(passengerBucketName)), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return passenger, nil
}

// ListPassengers returns all passengers
func (b *BoltDB) ListPassengers() ([]*Passenger, error) {
	passengers := make([]*Passenger, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(passengerBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var passenger Passenger
			if err := json.Unmarshal(v, &passenger); err != nil {
				return fmt.Errorf("unmarshaling passenger: %w", err)
			}
			passengers = append(passengers, &passenger)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return passengers, nil
}

// CountPassengers returns the number of stored passengers
func (b *BoltDB) CountPassengers() (int, error) {
	var count int
	err := b.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket([]byte(passengerBucketName)).Stats().KeyN
		return nil
	})
	return count, err
}

// UpdatePassenger applies fn inside a write transaction
func (b *BoltDB) UpdatePassenger(id int, fn func(*Passenger) error) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(passengerBucketName))
		passenger, err := getPassenger(bucket, id)
		if err != nil {
			return err
		}
		if err := fn(passenger); err != nil {
			return err
		}
		passenger.ID = id
		return putPassenger(bucket, passenger)
	})
}

func putInvoice(bucket *bbolt.Bucket, invoice *Invoice) error {
	data, err := json.Marshal(invoice)
	if err != nil {
		return fmt.Errorf("marshaling invoice: %w", err)
	}
	return bucket.Put([]byte(invoice.ID), data)
}

func getInvoice(bucket *bbolt.Bucket, id string) (*Invoice, error) {
	data := bucket.Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvoiceNotFound, id)
	}
	var invoice Invoice
	if err := json.Unmarshal(data, &invoice); err != nil {
		return nil, fmt.Errorf("unmarshaling invoice: %w", err)
	}
	return &invoice, nil
}

// AppendInvoice saves an invoice and flips its passenger's parse status to Parsed
func (b *BoltDB) AppendInvoice(invoice *Invoice) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		passengers := tx.Bucket([]byte(passengerBucketName))
		passenger, err := getPassenger(passengers, invoice.SubjectID)
		if err != nil {
			return err
		}

		if err := putInvoice(tx.Bucket([]byte(invoiceBucketName)), invoice); err != nil {
			return err
		}

		passenger.ParseStatus = Parsed
		passenger.UpdatedAt = invoice.CreatedAt
		return putPassenger(passengers, passenger)
	})
}

// GetInvoice retrieves an invoice by ID
func (b *BoltDB) GetInvoice(id string) (*Invoice, error) {
	var invoice *Invoice
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		invoice, err = getInvoice(tx.Bucket([]byte(invoiceBucketName)), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// ListInvoices returns all invoices ordered by creation time
func (b *BoltDB) ListInvoices() ([]*Invoice, error) {
	invoices := make([]*Invoice, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(invoiceBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var invoice Invoice
			if err := json.Unmarshal(v, &invoice); err != nil {
				return fmt.Errorf("unmarshaling invoice: %w", err)
			}
			invoices = append(invoices, &invoice)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// uuid keys carry no order
	sort.SliceStable(invoices, func(i, j int) bool {
		return invoices[i].CreatedAt.Before(invoices[j].CreatedAt)
	})
	return invoices, nil
}

// UpdateInvoice applies fn inside a write transaction
func (b *BoltDB) UpdateInvoice(id string, fn func(*Invoice) error) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(invoiceBucketName))
		invoice, err := getInvoice(bucket, id)
		if err != nil {
			return err
		}
		if err := fn(invoice); err != nil {
			return err
		}
		invoice.ID = id
		return putInvoice(bucket, invoice)
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
