package store

import (
	"fmt"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	tmsync "github.com/tendermint/tendermint/libs/sync"
	tmdb "github.com/tendermint/tm-db"
	"github.com/tendermint/tm-db/memdb"

	"antcolony_demo/types"
)

const (
	recordPrefix = "record:"
	// ':'的下一个字符，作为遍历的上界
	recordPrefixEnd = "record;"
)

var (
	// ErrRecordExists 每一轮只有一个结果，不允许覆盖
	ErrRecordExists  = errors.New("record for round already exists")
	ErrRecordMissing = errors.New("no record for round")
)

// key按round有序，方便倒序遍历
func recordKey(round types.RoundID) []byte {
	return []byte(fmt.Sprintf("%s%020d", recordPrefix, round.Int64()))
}

// DecisionStore 每一轮的共识结果，默认保存在内存里
type DecisionStore struct {
	mtx tmsync.Mutex
	db  tmdb.DB

	logger log.Logger
}

func NewMemDecisionStore(logger log.Logger) *DecisionStore {
	return NewDecisionStoreWithDB(memdb.NewDB(), logger)
}

func NewDecisionStoreWithDB(db tmdb.DB, logger log.Logger) *DecisionStore {
	return &DecisionStore{db: db, logger: logger}
}

// Save 保存一轮的结果；已有结果时返回已有的记录和ErrRecordExists
func (ds *DecisionStore) Save(record *types.ConsensusRecord) (*types.ConsensusRecord, error) {
	if err := record.ValidateBasic(); err != nil {
		return nil, err
	}

	ds.mtx.Lock()
	defer ds.mtx.Unlock()

	key := recordKey(record.Round)
	existing, err := ds.load(key)
	if err != nil && errors.Cause(err) != ErrRecordMissing {
		return nil, err
	}
	if existing != nil {
		return existing, ErrRecordExists
	}

	bz, err := tmjson.Marshal(record)
	if err != nil {
		return nil, errors.Wrap(err, "marshal record")
	}
	if err := ds.db.Set(key, bz); err != nil {
		return nil, errors.Wrap(err, "save record")
	}
	ds.logger.Debug("saved record", "record", record)
	return record, nil
}

func (ds *DecisionStore) Load(round types.RoundID) (*types.ConsensusRecord, error) {
	return ds.load(recordKey(round))
}

func (ds *DecisionStore) load(key []byte) (*types.ConsensusRecord, error) {
	bz, err := ds.db.Get(key)
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, ErrRecordMissing
	}
	record := new(types.ConsensusRecord)
	if err := tmjson.Unmarshal(bz, record); err != nil {
		return nil, errors.Wrapf(err, "corrupted record %s", key)
	}
	return record, nil
}

// List 从最新的round开始，最多返回limit条记录，limit<=0表示全部
func (ds *DecisionStore) List(limit int) ([]*types.ConsensusRecord, error) {
	it, err := ds.db.ReverseIterator([]byte(recordPrefix), []byte(recordPrefixEnd))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	records := []*types.ConsensusRecord{}
	for ; it.Valid(); it.Next() {
		record := new(types.ConsensusRecord)
		if err := tmjson.Unmarshal(it.Value(), record); err != nil {
			ds.logger.Error("skip corrupted record", "key", string(it.Key()), "err", err)
			continue
		}
		records = append(records, record)
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, it.Error()
}

// Latest 最新一轮的结果
func (ds *DecisionStore) Latest() (*types.ConsensusRecord, error) {
	records, err := ds.List(1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrRecordMissing
	}
	return records[0], nil
}
