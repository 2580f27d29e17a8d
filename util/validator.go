package util

import (
	"github.com/bwise1/voteledger/internal/model"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("votekind", validateVoteKind)
}

func validateVoteKind(fl validator.FieldLevel) bool {
	return model.VoteKind(fl.Field().String()).Valid()
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}
