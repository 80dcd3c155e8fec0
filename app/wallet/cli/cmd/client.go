package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ardanlabs/crossledger/business/web/errs"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

type account struct {
	Account identity.NativeID `json:"account"`
	Eth     common.Address    `json:"eth"`
	Name    string            `json:"name"`
	Nonce   uint64            `json:"nonce"`
	Balance *uint256.Int      `json:"balance"`
}

type accounts struct {
	LatestBlock common.Hash `json:"latest_block"`
	Uncommitted int         `json:"uncommitted"`
	Accounts    []account   `json:"accounts"`
}

type baseFee struct {
	BaseFee    *uint256.Int `json:"base_fee"`
	Elasticity string       `json:"elasticity"`
	IsActive   bool         `json:"is_active"`
}

type submitted struct {
	Status   string      `json:"status"`
	Hash     common.Hash `json:"hash"`
	Kind     string      `json:"kind"`
	Priority uint64      `json:"priority"`
}

var client = http.Client{
	Timeout: 10 * time.Second,
}

// queryAccount asks the node for the account behind the identity.
func queryAccount(id string) (account, error) {
	var acts accounts
	if err := send(http.MethodGet, fmt.Sprintf("%s/v1/accounts/list/%s", url, id), nil, &acts); err != nil {
		return account{}, err
	}

	if len(acts.Accounts) == 0 {
		return account{}, fmt.Errorf("account %s not found", id)
	}

	return acts.Accounts[0], nil
}

// queryBaseFee asks the node for the fee controller state.
func queryBaseFee() (baseFee, error) {
	var fee baseFee
	if err := send(http.MethodGet, fmt.Sprintf("%s/v1/basefee", url), nil, &fee); err != nil {
		return baseFee{}, err
	}
	return fee, nil
}

// submit sends an encoded extrinsic to the node.
func submit(data []byte) (submitted, error) {
	tx := struct {
		Data hexutil.Bytes `json:"data"`
	}{
		Data: data,
	}

	var resp submitted
	if err := send(http.MethodPost, fmt.Sprintf("%s/v1/tx/submit", url), tx, &resp); err != nil {
		return submitted{}, err
	}
	return resp, nil
}

func send(method string, url string, dataSend any, dataRecv any) error {
	var body io.Reader
	if dataSend != nil {
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var er errs.Response
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error == "" {
			return errors.New(resp.Status)
		}
		if er.Reason != "" {
			return fmt.Errorf("%s: refused (%s): %s", resp.Status, er.Reason, er.Error)
		}
		return fmt.Errorf("%s: %s", resp.Status, er.Error)
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return err
		}
	}

	return nil
}
