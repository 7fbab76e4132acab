package subscriber

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const registryABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": false, "internalType": "string", "name": "websiteUrl", "type": "string"}
    ],
    "name": "WebsitePublished",
    "type": "event"
  }
]`

// RegistryABI parses the website registry contract ABI.
func RegistryABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(registryABIJSON))
}

// PublishedEvent is the decoded form of one WebsitePublished log.
type PublishedEvent struct {
	User       common.Address
	WebsiteURL string
}

// EventDecoder decodes WebsitePublished logs.
type EventDecoder struct {
	event abi.Event
}

// NewEventDecoder builds a decoder for the registry's event.
func NewEventDecoder() (*EventDecoder, error) {
	registryABI, err := RegistryABI()
	if err != nil {
		return nil, err
	}
	event, ok := registryABI.Events["WebsitePublished"]
	if !ok {
		return nil, fmt.Errorf("event WebsitePublished missing from abi")
	}
	return &EventDecoder{event: event}, nil
}

// Topic returns the event's topic0 signature hash.
func (d *EventDecoder) Topic() common.Hash {
	return d.event.ID
}

// Decode extracts the indexed user address and the payload URL.
func (d *EventDecoder) Decode(log types.Log) (PublishedEvent, error) {
	if len(log.Topics) == 0 {
		return PublishedEvent{}, fmt.Errorf("missing topics")
	}
	if log.Topics[0] != d.event.ID {
		return PublishedEvent{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}
	if len(log.Topics) < 2 {
		return PublishedEvent{}, fmt.Errorf("missing indexed user topic")
	}

	values, err := d.event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return PublishedEvent{}, fmt.Errorf("unpack data: %w", err)
	}
	if len(values) != 1 {
		return PublishedEvent{}, fmt.Errorf("unexpected data field count: %d", len(values))
	}
	url, ok := values[0].(string)
	if !ok {
		return PublishedEvent{}, fmt.Errorf("websiteUrl is not a string")
	}

	return PublishedEvent{
		User:       common.BytesToAddress(log.Topics[1].Bytes()),
		WebsiteURL: url,
	}, nil
}
