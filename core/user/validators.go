package user

import (
	"bufio"
	"fmt"
	"sort"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/klunity/klunity/core"
	appfs "github.com/klunity/klunity/fs"
)

var (
	reservedUsernameTag  = "unreserved"
	reservedUsernameText = "this username is reserved"
	reservedUsernames    = map[string]struct{}{
		"admin": {}, "administrator": {}, "root": {}, "system": {}, "support": {}, "moderator": {},
		"mod": {}, "staff": {}, "klunity": {}, "kluniversity": {}, "help": {}, "info": {},
		"official": {}, "security": {}, "null": {}, "undefined": {}, "api": {}, "www": {},
	}

	// password policy
	pwdMinLen     = 6
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "password is too common"

	pwdTexts = map[string]string{
		pwdMinLenTag:   pwdMinLenText,
		pwdNoSpaceTag:  pwdNoSpaceText,
		pwdAttrSimTag:  pwdAttrSimText,
		pwdNoCommonTag: pwdNoCommonText,
	}

	commonPasswords []string
)

// InitValidators registers the user validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(userStructValidation, NewUser{}, ResetUserPassword{})

	core.RegisterCustomTranslation(validate, translator, reservedUsernameTag, reservedUsernameText)
	for tag, text := range pwdTexts {
		core.RegisterCustomTranslation(validate, translator, tag, text)
	}
}

// LoadCommonPasswords loads the embedded list of passwords too common to be accepted.
func LoadCommonPasswords(logger core.Logger) {
	file, err := appfs.FS.Open("assets/common-passwords.txt")
	if err != nil {
		logger.Error(fmt.Sprintf("loading common passwords: %v", err), err)
		return
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()

	pwds := make([]string, 0, 64)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			pwds = append(pwds, strings.ToLower(pwd))
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error(fmt.Sprintf("loading common passwords: %v", err), err)
	}
	sort.Strings(pwds)
	commonPasswords = pwds
}

// userStructValidation does struct level validation on the sign up and password reset payloads.
func userStructValidation(sl validator.StructLevel) {
	switch v := sl.Current().Interface().(type) {
	case NewUser:
		if isReservedUsername(v.Username) {
			sl.ReportError(v.Username, "username", "Username", reservedUsernameTag, "")
		}
		if tag := checkPassword(v.Password, v.Name, v.Username, v.Email); tag != "" {
			sl.ReportError(v.Password, "password", "Password", tag, "")
		}
	case ResetUserPassword:
		if tag := checkPassword(v.Password, v.Email); tag != "" {
			sl.ReportError(v.Password, "password", "Password", tag, "")
		}
	}
}

func isReservedUsername(uname string) bool {
	_, ok := reservedUsernames[strings.ToLower(uname)]
	return ok
}

// PasswordPolicyError returns a validation error if pwd breaks the password policy, nil otherwise.
func PasswordPolicyError(pwd string, usr User) error {
	if tag := checkPassword(pwd, usr.Name, usr.Username, usr.Email); tag != "" {
		return core.NewValidationError(nil, core.FieldError{Field: "password", Error: pwdTexts[tag]})
	}
	return nil
}

// checkPassword applies the password policy and returns the tag of the first broken rule:
// - minLen: 6
// - no whitespace
// - no user attrs similarity
// - no common password
func checkPassword(pwd string, attrs ...string) string {
	if len([]rune(pwd)) < pwdMinLen {
		return pwdMinLenTag
	}
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			return pwdNoSpaceTag
		}
	}

	lpwd := strings.ToLower(pwd)
	for _, attr := range attrs {
		if attr == "" {
			continue
		}
		attr = strings.ToLower(attr)
		if i := strings.Index(attr, "@"); i > 0 {
			if difflib.NewMatcher(strings.Split(lpwd, ""), strings.Split(attr[:i], "")).QuickRatio() >= pwdMaxSim {
				return pwdAttrSimTag
			}
		}
		if difflib.NewMatcher(strings.Split(lpwd, ""), strings.Split(attr, "")).QuickRatio() >= pwdMaxSim {
			return pwdAttrSimTag
		}
	}

	if idx := sort.SearchStrings(commonPasswords, lpwd); idx < len(commonPasswords) && commonPasswords[idx] == lpwd {
		return pwdNoCommonTag
	}
	return ""
}
