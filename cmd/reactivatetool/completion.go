package main

import (
	"fmt"
	"strings"
)

func completionScript(shell string) (string, error) {
	switch shell {
	case "bash":
		return generateBashCompletion(), nil
	case "powershell":
		return generatePowerShellCompletion(), nil
	}
	return "", fmt.Errorf("invalid completion shell type %q (valid: bash, powershell)", shell)
}

// generateBashCompletion generates a bash completion script for the tool
func generateBashCompletion() string {
	return `# reactivatetool bash completion script
# Installation:
#   Linux: Copy to /etc/bash_completion.d/reactivatetool
#   macOS: Copy to /usr/local/etc/bash_completion.d/reactivatetool
#   Manual: source this file in your ~/.bashrc

_reactivatetool_completions() {
    local cur prev opts
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    opts="-config -csv -action -email -whatif -strict -output -auditformat -verbose -loglevel -version -help -completion"

    case "${prev}" in
        -action)
            COMPREPLY=( $(compgen -W "` + strings.Join(allActions, " ") + `" -- ${cur}) )
            return 0
            ;;
        -config|-csv)
            COMPREPLY=( $(compgen -f -- ${cur}) )
            return 0
            ;;
        -output)
            COMPREPLY=( $(compgen -W "text json" -- ${cur}) )
            return 0
            ;;
        -auditformat)
            COMPREPLY=( $(compgen -W "csv json" -- ${cur}) )
            return 0
            ;;
        -loglevel)
            COMPREPLY=( $(compgen -W "DEBUG INFO WARN ERROR" -- ${cur}) )
            return 0
            ;;
        -completion)
            COMPREPLY=( $(compgen -W "bash powershell" -- ${cur}) )
            return 0
            ;;
        -email)
            return 0
            ;;
    esac

    COMPREPLY=( $(compgen -W "${opts}" -- ${cur}) )
    return 0
}

complete -F _reactivatetool_completions reactivatetool.exe
complete -F _reactivatetool_completions reactivatetool
complete -F _reactivatetool_completions ./reactivatetool.exe
complete -F _reactivatetool_completions ./reactivatetool
`
}

// generatePowerShellCompletion generates a PowerShell completion script for the tool
func generatePowerShellCompletion() string {
	quoted := make([]string, len(allActions))
	for i, a := range allActions {
		quoted[i] = "'" + a + "'"
	}
	return `# reactivatetool PowerShell completion script
# Installation:
#   Add to your PowerShell profile: notepad $PROFILE
#   Or run manually: . .\reactivatetool-completion.ps1

Register-ArgumentCompleter -Native -CommandName reactivatetool.exe,reactivatetool,'.\reactivatetool.exe','.\reactivatetool' -ScriptBlock {
    param($wordToComplete, $commandAst, $cursorPosition)

    $actions = @(` + strings.Join(quoted, ", ") + `)
    $logLevels = @('DEBUG', 'INFO', 'WARN', 'ERROR')
    $values = @{
        '-action'      = $actions
        '-output'      = @('text', 'json')
        '-auditformat' = @('csv', 'json')
        '-loglevel'    = $logLevels
        '-completion'  = @('bash', 'powershell')
    }
    $flags = @(
        '-config', '-csv', '-action', '-email', '-whatif', '-strict', '-output',
        '-auditformat', '-verbose', '-loglevel', '-version', '-help', '-completion'
    )

    $lastWord = ''
    if ($commandAst.CommandElements.Count -gt 1) {
        $lastWord = $commandAst.CommandElements[-1].ToString()
        if ($wordToComplete -ne '') {
            $lastWord = $commandAst.CommandElements[-2].ToString()
        }
    }

    if ($values.ContainsKey($lastWord)) {
        $values[$lastWord] | Where-Object { $_ -like "$wordToComplete*" } | ForEach-Object {
            [System.Management.Automation.CompletionResult]::new($_, $_, 'ParameterValue', $_)
        }
        return
    }

    $flags | Where-Object { $_ -like "$wordToComplete*" } | ForEach-Object {
        [System.Management.Automation.CompletionResult]::new($_, $_, 'ParameterName', $_)
    }
}
`
}
