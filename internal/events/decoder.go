package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/stele-indexer/internal/models"
)

// ErrUnknownEvent is returned for logs whose topic0 is not a known event
var ErrUnknownEvent = errors.New("unknown event")

type decoderEntry struct {
	contractABI abi.ABI
	event       abi.Event
	indexed     abi.Arguments
	nonIndexed  abi.Arguments
	newEvent    func() Event
}

// Decoder maps raw logs to typed events by their topic0
type Decoder struct {
	entries map[common.Hash]decoderEntry
}

var governorEvents = map[string]func() Event{
	"ProposalCreated":        func() Event { return &ProposalCreated{} },
	"ProposalCanceled":       func() Event { return &ProposalCanceled{} },
	"ProposalExecuted":       func() Event { return &ProposalExecuted{} },
	"ProposalQueued":         func() Event { return &ProposalQueued{} },
	"VoteCast":               func() Event { return &VoteCast{} },
	"VoteCastWithParams":     func() Event { return &VoteCastWithParams{} },
	"ProposalThresholdSet":   func() Event { return &ProposalThresholdSet{} },
	"QuorumNumeratorUpdated": func() Event { return &QuorumNumeratorUpdated{} },
	"VotingDelaySet":         func() Event { return &VotingDelaySet{} },
	"VotingPeriodSet":        func() Event { return &VotingPeriodSet{} },
	"TimelockChange":         func() Event { return &TimelockChange{} },
}

var steleEvents = map[string]func() Event{
	"SteleCreated":         func() Event { return &SteleCreated{} },
	"AddToken":             func() Event { return &AddToken{} },
	"RemoveToken":          func() Event { return &RemoveToken{} },
	"RewardRatio":          func() Event { return &RewardRatio{} },
	"SeedMoney":            func() Event { return &SeedMoney{} },
	"EntryFee":             func() Event { return &EntryFee{} },
	"MaxAssets":            func() Event { return &MaxAssets{} },
	"OwnershipTransferred": func() Event { return &OwnershipTransferred{} },
	"Create":               func() Event { return &Create{} },
	"Join":                 func() Event { return &Join{} },
	"Swap":                 func() Event { return &Swap{} },
	"Register":             func() Event { return &Register{} },
	"Reward":               func() Event { return &Reward{} },
}

// NewDecoder parses the governor and stele ABIs and indexes their events
func NewDecoder() (*Decoder, error) {
	d := &Decoder{entries: make(map[common.Hash]decoderEntry)}
	if err := d.register(GovernorABI, governorEvents); err != nil {
		return nil, fmt.Errorf("governor abi: %w", err)
	}
	if err := d.register(SteleABI, steleEvents); err != nil {
		return nil, fmt.Errorf("stele abi: %w", err)
	}
	return d, nil
}

func (d *Decoder) register(raw string, ctors map[string]func() Event) error {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return err
	}
	for name, ctor := range ctors {
		ev, ok := parsed.Events[name]
		if !ok {
			return fmt.Errorf("event %s missing from abi", name)
		}
		entry := decoderEntry{contractABI: parsed, event: ev, newEvent: ctor}
		for _, arg := range ev.Inputs {
			if arg.Indexed {
				entry.indexed = append(entry.indexed, arg)
			} else {
				entry.nonIndexed = append(entry.nonIndexed, arg)
			}
		}
		d.entries[ev.ID] = entry
	}
	return nil
}

// Topics returns every topic0 the decoder understands, for log filters
func (d *Decoder) Topics() []common.Hash {
	topics := make([]common.Hash, 0, len(d.entries))
	for id := range d.entries {
		topics = append(topics, id)
	}
	slices.SortFunc(topics, func(a, b common.Hash) int { return a.Cmp(b) })
	return topics
}

// TopicOf returns the topic0 of a known event name
func (d *Decoder) TopicOf(name string) (common.Hash, bool) {
	for id, entry := range d.entries {
		if entry.event.Name == name {
			return id, true
		}
	}
	return common.Hash{}, false
}

// Decode turns a raw log into its typed event with delivery coordinates attached
func (d *Decoder) Decode(lg types.Log, blockTimestamp uint64) (Event, error) {
	if len(lg.Topics) == 0 {
		return nil, ErrUnknownEvent
	}
	entry, ok := d.entries[lg.Topics[0]]
	if !ok {
		return nil, fmt.Errorf("%w: topic %s", ErrUnknownEvent, lg.Topics[0].Hex())
	}

	ev := entry.newEvent()
	if len(entry.nonIndexed) > 0 {
		if err := entry.contractABI.UnpackIntoInterface(ev, entry.event.Name, lg.Data); err != nil {
			return nil, fmt.Errorf("unpack %s data: %w", entry.event.Name, err)
		}
	}
	if len(entry.indexed) > 0 {
		if err := abi.ParseTopics(ev, entry.indexed, lg.Topics[1:]); err != nil {
			return nil, fmt.Errorf("parse %s topics: %w", entry.event.Name, err)
		}
	}

	*ev.EventMeta() = Meta{
		Contract:       lg.Address,
		BlockNumber:    lg.BlockNumber,
		BlockTimestamp: blockTimestamp,
		TxHash:         lg.TxHash,
		LogIndex:       lg.Index,
	}
	return ev, nil
}

// Encode packs a typed event back into a log. It is the inverse of Decode
// and is used to build fixtures and replay files.
func (d *Decoder) Encode(ev Event) (types.Log, error) {
	topic, ok := d.TopicOf(ev.EventName())
	if !ok {
		return types.Log{}, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.EventName())
	}
	entry := d.entries[topic]

	values, err := fieldValues(ev, entry.nonIndexed)
	if err != nil {
		return types.Log{}, err
	}
	data, err := entry.nonIndexed.Pack(values...)
	if err != nil {
		return types.Log{}, fmt.Errorf("pack %s: %w", entry.event.Name, err)
	}

	topics := []common.Hash{topic}
	if len(entry.indexed) > 0 {
		indexedValues, err := fieldValues(ev, entry.indexed)
		if err != nil {
			return types.Log{}, err
		}
		query := make([][]interface{}, len(indexedValues))
		for i, v := range indexedValues {
			query[i] = []interface{}{v}
		}
		extra, err := abi.MakeTopics(query...)
		if err != nil {
			return types.Log{}, fmt.Errorf("topics %s: %w", entry.event.Name, err)
		}
		for _, t := range extra {
			topics = append(topics, t[0])
		}
	}

	m := ev.EventMeta()
	return types.Log{
		Address:     m.Contract,
		Topics:      topics,
		Data:        data,
		BlockNumber: m.BlockNumber,
		TxHash:      m.TxHash,
		Index:       m.LogIndex,
	}, nil
}

// SortLogs orders logs by block number, then log index
func SortLogs(logs []types.Log) {
	slices.SortStableFunc(logs, func(a, b types.Log) int {
		if a.BlockNumber != b.BlockNumber {
			if a.BlockNumber < b.BlockNumber {
				return -1
			}
			return 1
		}
		switch {
		case a.Index < b.Index:
			return -1
		case a.Index > b.Index:
			return 1
		default:
			return 0
		}
	})
}

// ToRawEvent builds the audit record of ev
func ToRawEvent(ev Event) (*models.RawEvent, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", ev.EventName(), err)
	}
	m := ev.EventMeta()
	return &models.RawEvent{
		Key:             m.Key(),
		Name:            ev.EventName(),
		Contract:        m.Contract.Hex(),
		BlockNumber:     m.BlockNumber,
		BlockTimestamp:  m.BlockTimestamp,
		TransactionHash: m.TxHash.Hex(),
		LogIndex:        uint32(m.LogIndex),
		Payload:         payload,
	}, nil
}

func fieldValues(ev Event, args abi.Arguments) ([]interface{}, error) {
	v := reflect.ValueOf(ev).Elem()
	out := make([]interface{}, 0, len(args))
	for _, arg := range args {
		field, ok := fieldFor(v.Type(), arg.Name)
		if !ok {
			return nil, fmt.Errorf("%s has no field for %s", ev.EventName(), arg.Name)
		}
		out = append(out, v.FieldByIndex(field.Index).Interface())
	}
	return out, nil
}

func fieldFor(t reflect.Type, name string) (reflect.StructField, bool) {
	for i := 0; i < t.NumField(); i++ {
		if f := t.Field(i); f.Tag.Get("abi") == name {
			return f, true
		}
	}
	return t.FieldByName(abi.ToCamelCase(name))
}
