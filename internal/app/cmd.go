package app

import (
	"errors"
	"fmt"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandInit はデータファイルをデフォルト内容で作成することを示す。
	CommandInit Command = "init"
	// CommandAddUser はユーザーを追加することを示す。
	CommandAddUser Command = "adduser"
	// CommandValidate はデータファイルを検証することを示す。
	CommandValidate Command = "validate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "init":
		return CommandInit
	case "adduser":
		return CommandAddUser
	case "validate":
		return CommandValidate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// AddUserArgs は adduser サブコマンドの引数。
type AddUserArgs struct {
	Email    string
	Password string
	Name     string
	Hash     bool
}

// addUserUsage は adduser の使い方。
const addUserUsage = `usage: todoman adduser <email> <password> <name> [--hash]`

// ErrUsage は引数の不足・過剰を表す。
var ErrUsage = errors.New("invalid arguments")

// ParseAddUserArgs は adduser に続く引数を解析する。
// --hash は位置引数の前後どちらにも置ける。
func ParseAddUserArgs(args []string) (AddUserArgs, error) {
	var parsed AddUserArgs
	var positional []string
	for _, arg := range args {
		switch arg {
		case "--hash", "-hash":
			parsed.Hash = true
		default:
			positional = append(positional, arg)
		}
	}

	if len(positional) != 3 {
		return AddUserArgs{}, fmt.Errorf("%w: %s", ErrUsage, addUserUsage)
	}
	parsed.Email, parsed.Password, parsed.Name = positional[0], positional[1], positional[2]
	return parsed, nil
}
