package rpc

import "context"

type (
	SubaddressIndex struct {
		Major uint64 `json:"major"`
		Minor uint64 `json:"minor"`
	}
	GetTransfersRequest struct {
		In             bool     `json:"in,omitempty"`
		Out            bool     `json:"out,omitempty"`
		Pending        bool     `json:"pending,omitempty"`
		Failed         bool     `json:"failed,omitempty"`
		Pool           bool     `json:"pool,omitempty"`
		AccountIndex   uint64   `json:"account_index"`
		SubaddrIndices []uint64 `json:"subaddr_indices,omitempty"`
		FilterByHeight bool     `json:"filter_by_height,omitempty"`
		MinHeight      uint64   `json:"min_height,omitempty"`
	}
	Transfer struct {
		Address       string          `json:"address"`
		Amount        uint64          `json:"amount"`
		Confirmations uint64          `json:"confirmations"`
		Height        uint64          `json:"height"`
		Fee           uint64          `json:"fee"`
		Note          string          `json:"note"`
		PaymentId     string          `json:"payment_id"`
		SubaddrIndex  SubaddressIndex `json:"subaddr_index"`
		Timestamp     int64           `json:"timestamp"`
		Txid          string          `json:"txid"`
		Type          string          `json:"type"`
		UnlockTime    uint64          `json:"unlock_time"`
		Locked        bool            `json:"locked"`
	}
	GetTransfersResponse struct {
		In      []Transfer `json:"in"`
		Out     []Transfer `json:"out"`
		Pending []Transfer `json:"pending"`
		Failed  []Transfer `json:"failed"`
		Pool    []Transfer `json:"pool"`
	}
	CreateAddressRequest struct {
		AccountIndex uint64 `json:"account_index"`
		Label        string `json:"label,omitempty"`
	}
	CreateAddressResponse struct {
		Address      string `json:"address"`
		AddressIndex uint64 `json:"address_index"`
	}
	GetBalanceRequest struct {
		AccountIndex   uint64   `json:"account_index"`
		AddressIndices []uint64 `json:"address_indices,omitempty"`
	}
	GetBalanceResponse struct {
		Balance         uint64 `json:"balance"`
		UnlockedBalance uint64 `json:"unlocked_balance"`
	}
	RefreshRequest struct {
		StartHeight uint64 `json:"start_height,omitempty"`
	}
	RefreshResponse struct {
		BlocksFetched uint64 `json:"blocks_fetched"`
		ReceivedMoney bool   `json:"received_money"`
	}
	GetVersionResponse struct {
		Version uint64 `json:"version"`
		Release bool   `json:"release"`
	}
)

func (c *Client) GetTransfers(ctx context.Context, req *GetTransfersRequest) (res *GetTransfersResponse, err error) {
	res = &GetTransfersResponse{}
	err = c.Call(ctx, "get_transfers", req, res)
	return res, err
}

func (c *Client) CreateAddress(ctx context.Context, req *CreateAddressRequest) (res *CreateAddressResponse, err error) {
	res = &CreateAddressResponse{}
	err = c.Call(ctx, "create_address", req, res)
	return res, err
}

func (c *Client) GetBalance(ctx context.Context, req *GetBalanceRequest) (res *GetBalanceResponse, err error) {
	res = &GetBalanceResponse{}
	err = c.Call(ctx, "get_balance", req, res)
	return res, err
}

func (c *Client) Refresh(ctx context.Context, req *RefreshRequest) (res *RefreshResponse, err error) {
	res = &RefreshResponse{}
	err = c.Call(ctx, "refresh", req, res)
	return res, err
}

func (c *Client) GetVersion(ctx context.Context) (res *GetVersionResponse, err error) {
	res = &GetVersionResponse{}
	err = c.Call(ctx, "get_version", nil, res)
	return res, err
}

// Store persists the wallet file
func (c *Client) Store(ctx context.Context) (err error) {
	return c.Call(ctx, "store", nil, nil)
}
