package token

// Allows は検証済みクレームが要求された権限を満たすかどうかを判定する。
//
// 要求権限が空文字列の場合は公開ルートとみなし、クレームの有無に
// かかわらず常に許可する。スーパーユーザーはすべての権限チェックを
// 通過する。副作用もI/Oも持たない純粋な判定関数である。
func Allows(claims *Claims, required string) bool {
	if required == "" {
		return true
	}
	if claims == nil {
		return false
	}
	if claims.Superuser {
		return true
	}
	for _, p := range claims.Permissions {
		if p == required {
			return true
		}
	}
	return false
}
