package req

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"trade_engine/pkg/errcodes"
)

var (
	json     = jsoniter.ConfigCompatibleWithStandardLibrary         //nolint:gochecknoglobals // skip
	validate = validator.New(validator.WithRequiredStructEnabled()) //nolint:gochecknoglobals // skip
)

func Read(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return errcodes.New(errcodes.ValidationError, fmt.Sprintf("invalid JSON: %v", err))
	}

	if err := validate.StructCtx(r.Context(), dest); err != nil {
		return errcodes.New(errcodes.ValidationError, err.Error())
	}

	return nil
}
