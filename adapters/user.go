package adapters

import "github.com/jrsteele09/go-dashboard-client/internal/utils"

func AdaptUser(raw any) User {
	v, _ := DecodeUser(raw)
	return v
}

// DecodeUser accepts a bare profile or one wrapped in "user" or "data".
func DecodeUser(raw any) (User, error) {
	obj := asMap(raw)
	if obj == nil {
		return User{}, shapeError(raw, "object")
	}
	for _, wrapper := range []string{"user", "data"} {
		if inner := asMap(obj[wrapper]); inner != nil {
			obj = inner
			break
		}
	}
	return User{
		ID:            toString(obj["id"]),
		Email:         toString(obj["email"]),
		Name:          stringField(obj, "name", "full_name"),
		Company:       toString(obj["company"]),
		JobTitle:      toString(obj["job_title"]),
		AvatarURL:     toString(obj["avatar_url"]),
		Timezone:      toString(obj["timezone"]),
		EmailVerified: toBool(obj["email_verified"]),
		Plan:          toString(obj["plan"]),
		LastLogin:     toString(obj["last_login"]),
		CreatedAt:     toString(obj["created_at"]),
		UpdatedAt:     toString(obj["updated_at"]),
	}, nil
}

func AdaptVerifyResponse(raw any) VerifyResponse {
	v, _ := DecodeVerifyResponse(raw)
	return v
}

// DecodeVerifyResponse requires an object carrying an access token.
func DecodeVerifyResponse(raw any) (VerifyResponse, error) {
	obj := asMap(raw)
	if obj == nil {
		return VerifyResponse{}, shapeError(raw, "object")
	}
	resp := VerifyResponse{
		AccessToken:  toString(obj["access_token"]),
		RefreshToken: toString(obj["refresh_token"]),
		TokenType:    toString(obj["token_type"]),
		Message:      toString(obj["message"]),
	}
	if user := asMap(obj["user"]); user != nil {
		resp.User = utils.Ptr(AdaptUser(user))
	}
	if resp.AccessToken == "" {
		return resp, shapeError(obj["access_token"], "access_token string")
	}
	return resp, nil
}

func AdaptPlan(raw any) Plan {
	v, _ := DecodePlan(raw)
	return v
}

func DecodePlan(raw any) (Plan, error) {
	obj := unwrapData(raw)
	if obj == nil {
		return Plan{Features: []string{}}, shapeError(raw, "object")
	}
	return Plan{
		Name:          stringField(obj, "name", "plan"),
		RequestsLimit: intField(obj, "requests_limit", "monthly_limit"),
		RequestsUsed:  intField(obj, "requests_used", "monthly_calls"),
		Features:      utils.ToStringSlice(obj["features"]),
	}, nil
}
