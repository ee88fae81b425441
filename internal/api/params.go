package api

import (
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	apperrors "github.com/stele-indexer/internal/errors"
)

// pathAddress parses the route variable name as a hex address
func pathAddress(r *http.Request, name string) (common.Address, error) {
	raw := mux.Vars(r)[name]
	if !common.IsHexAddress(raw) {
		return common.Address{}, apperrors.NewInvalidAddressError(raw)
	}
	return common.HexToAddress(raw), nil
}

// pathUint parses the route variable name as a non-negative decimal
func pathUint(r *http.Request, name string) (uint64, error) {
	raw := mux.Vars(r)[name]
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperrors.NewInvalidParameterError(name, "must be a non-negative integer")
	}
	return v, nil
}

// pathBigInt parses the route variable name as an unsigned 256-bit integer
// and returns its canonical decimal form
func pathBigInt(r *http.Request, name string) (string, error) {
	raw := mux.Vars(r)[name]
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 || v.BitLen() > 256 {
		return "", apperrors.NewInvalidParameterError(name, "must be a uint256 in decimal")
	}
	return v.String(), nil
}

// found writes v, or a not-found error when ok is false
func found[T any](w http.ResponseWriter, v *T, ok bool, err error, resource, id string) {
	if err != nil {
		respondCategorized(w, err)
		return
	}
	if !ok {
		respondCategorized(w, apperrors.NewNotFoundError(resource, id))
		return
	}
	respondJSON(w, http.StatusOK, v)
}
