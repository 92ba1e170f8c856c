// Package handler は account ユースケースを HTTP (gin) で公開します。
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ogurasousui/codex-account-service/internal/core/account"
)

// 操作結果レスポンスで利用する値です。
const (
	OperationDelete      = "DELETE"
	OperationVerifyEmail = "VERIFY_EMAIL"
	OperationLogin       = "LOGIN"

	ResultSuccess = "SUCCESS"
	ResultError   = "ERROR"
)

const defaultPageSize = 25

// PasswordVerifier は平文とハッシュの照合を行います。
type PasswordVerifier interface {
	Compare(hash, plaintext string) bool
}

// AccountHandler は /users 配下のルートを提供します。
type AccountHandler struct {
	svc      account.UseCase
	verifier PasswordVerifier
}

// NewAccountHandler は AccountHandler を生成します。
func NewAccountHandler(svc account.UseCase, verifier PasswordVerifier) *AccountHandler {
	return &AccountHandler{svc: svc, verifier: verifier}
}

// Register はルートを登録します。
func (h *AccountHandler) Register(r gin.IRouter) {
	users := r.Group("/users")
	users.POST("", h.CreateAccount)
	users.GET("", h.ListAccounts)
	users.GET("/email-verification", h.VerifyEmailToken)
	users.POST("/login", h.Login)
	users.GET("/:id", h.GetAccount)
	users.PUT("/:id", h.UpdateAccount)
	users.DELETE("/:id", h.DeleteAccount)
}

// CreateAccountRequest はアカウント作成リクエストです。
type CreateAccountRequest struct {
	FirstName string           `json:"firstName" validate:"required,max=50"`
	LastName  string           `json:"lastName" validate:"required,max=50"`
	Email     string           `json:"email" validate:"required,email,max=120"`
	Password  string           `json:"password" validate:"required,max=72"`
	Addresses []AddressRequest `json:"addresses" validate:"omitempty,dive"`
}

// AddressRequest は住所の入力です。
type AddressRequest struct {
	City       string `json:"city" validate:"max=120"`
	Country    string `json:"country" validate:"max=120"`
	StreetName string `json:"streetName" validate:"max=120"`
	PostalCode string `json:"postalCode" validate:"max=120"`
	Type       string `json:"type" validate:"max=120"`
}

// UpdateAccountRequest はアカウント更新リクエストです。指定した項目のみ更新します。
type UpdateAccountRequest struct {
	FirstName *string `json:"firstName" validate:"omitempty,max=50"`
	LastName  *string `json:"lastName" validate:"omitempty,max=50"`
}

// ListAccountsQuery は一覧取得のクエリです。email を指定した場合は該当アカウントのみを返します。
type ListAccountsQuery struct {
	Page  int    `form:"page" validate:"gte=0"`
	Limit *int   `form:"limit" validate:"omitempty,gte=1,lte=200"`
	Email string `form:"email" validate:"omitempty,max=120"`
}

// VerifyEmailQuery は確認用トークンのクエリです。
type VerifyEmailQuery struct {
	Token string `form:"token" validate:"required"`
}

// LoginRequest は認証情報の照合リクエストです。
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AccountResponse はアカウントの公開表現です。
type AccountResponse struct {
	AccountID     string            `json:"accountId"`
	Email         string            `json:"email"`
	FirstName     string            `json:"firstName"`
	LastName      string            `json:"lastName"`
	EmailVerified bool              `json:"emailVerified"`
	Addresses     []AddressResponse `json:"addresses"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// AddressResponse は住所の公開表現です。
type AddressResponse struct {
	AddressID  string `json:"addressId"`
	City       string `json:"city"`
	Country    string `json:"country"`
	StreetName string `json:"streetName"`
	PostalCode string `json:"postalCode"`
	Type       string `json:"type"`
}

// ListAccountsResponse は一覧取得のレスポンスです。
type ListAccountsResponse struct {
	Accounts []AccountResponse `json:"accounts"`
}

// OperationStatus は結果のみを返す操作のレスポンスです。
type OperationStatus struct {
	OperationName   string `json:"operationName"`
	OperationResult string `json:"operationResult"`
}

// PrincipalResponse は認証成功時のレスポンスです。
type PrincipalResponse struct {
	Username    string   `json:"username"`
	Authorities []string `json:"authorities"`
}

// CreateAccount はアカウントを作成し、確認用メールを送信します。
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if !bindJSON(c, &req) {
		return
	}

	addresses := make([]account.AddressInput, 0, len(req.Addresses))
	for _, a := range req.Addresses {
		addresses = append(addresses, account.AddressInput{
			City:       a.City,
			Country:    a.Country,
			StreetName: a.StreetName,
			PostalCode: a.PostalCode,
			Type:       a.Type,
		})
	}

	created, err := h.svc.CreateAccount(c.Request.Context(), account.CreateAccountInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Addresses: addresses,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toAccountResponse(created))
}

// GetAccount は AccountID でアカウントを取得します。
func (h *AccountHandler) GetAccount(c *gin.Context) {
	found, err := h.svc.GetAccount(c.Request.Context(), account.GetAccountInput{AccountID: c.Param("id")})
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(found))
}

// UpdateAccount はアカウントの氏名を更新します。
func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	var req UpdateAccountRequest
	if !bindJSON(c, &req) {
		return
	}

	updated, err := h.svc.UpdateAccount(c.Request.Context(), account.UpdateAccountInput{
		AccountID: c.Param("id"),
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(updated))
}

// DeleteAccount はアカウントを削除します。
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	if err := h.svc.DeleteAccount(c.Request.Context(), account.DeleteAccountInput{AccountID: c.Param("id")}); err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, OperationStatus{OperationName: OperationDelete, OperationResult: ResultSuccess})
}

// ListAccounts はアカウントの一覧を返します。
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	var q ListAccountsQuery
	if !bindQuery(c, &q) {
		return
	}

	if q.Email != "" {
		found, err := h.svc.GetAccountByEmail(c.Request.Context(), q.Email)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, ListAccountsResponse{Accounts: []AccountResponse{toAccountResponse(found)}})
		return
	}

	limit := defaultPageSize
	if q.Limit != nil {
		limit = *q.Limit
	}

	views, err := h.svc.ListAccounts(c.Request.Context(), account.ListAccountsInput{PageIndex: q.Page, PageSize: limit})
	if err != nil {
		respondWithError(c, err)
		return
	}

	resp := ListAccountsResponse{Accounts: make([]AccountResponse, 0, len(views))}
	for _, v := range views {
		resp.Accounts = append(resp.Accounts, toAccountResponse(v))
	}
	c.JSON(http.StatusOK, resp)
}

// VerifyEmailToken は未知または期限切れのトークンに対しても 200 を返し、結果を operationResult で示します。
func (h *AccountHandler) VerifyEmailToken(c *gin.Context) {
	var q VerifyEmailQuery
	if !bindQuery(c, &q) {
		return
	}

	ok, err := h.svc.VerifyEmailToken(c.Request.Context(), q.Token)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result := ResultError
	if ok {
		result = ResultSuccess
	}
	c.JSON(http.StatusOK, OperationStatus{OperationName: OperationVerifyEmail, OperationResult: result})
}

// Login は認証情報を照合します。未登録と不一致は区別せず 401 を返します。
func (h *AccountHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	principal, err := h.svc.LoadPrincipal(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) || errors.Is(err, account.ErrInvalidEmail) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Message: "invalid credentials"})
			return
		}
		respondWithError(c, err)
		return
	}

	if !h.verifier.Compare(principal.Password, req.Password) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Message: "invalid credentials"})
		return
	}
	if !principal.Enabled {
		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Message: "email address is not verified"})
		return
	}

	c.JSON(http.StatusOK, PrincipalResponse{Username: principal.Username, Authorities: principal.Authorities})
}

func toAccountResponse(v *account.View) AccountResponse {
	resp := AccountResponse{
		AccountID:     v.AccountID,
		Email:         v.Email,
		FirstName:     v.FirstName,
		LastName:      v.LastName,
		EmailVerified: v.EmailVerified,
		Addresses:     make([]AddressResponse, 0, len(v.Addresses)),
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
	}
	for _, a := range v.Addresses {
		resp.Addresses = append(resp.Addresses, AddressResponse{
			AddressID:  a.AddressID,
			City:       a.City,
			Country:    a.Country,
			StreetName: a.StreetName,
			PostalCode: a.PostalCode,
			Type:       a.Type,
		})
	}
	return resp
}
