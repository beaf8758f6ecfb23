// Package shellenv emits shell helper functions that keep the current
// tag selection in ~/.entsfs and surface it in the prompt. The output is
// meant to be eval'd: eval "$(eihwaz shell)".
package shellenv

import "strings"

const bashScript = `# Bash Functions

ct() {
    echo $1 > ~/.entsfs
}

setps() {
    if [ -f ~/.entsfs ]; then
        FUSENTS_VALUE=$(cat ~/.entsfs)
        if [ "$FUSENTS_VALUE" = "" ]; then
            PS1="\[\033[01;32m\]\u@\h | \W\[\033[00m\] \$ "
        else
            PS1="\[\033[01;32m\]\u@\h | \W | $FUSENTS_VALUE\[\033[00m\] \$ "
        fi
    else
        touch ~/.entsfs
        PS1="\[\033[01;32m\]\u@\h | \W\[\033[00m\] \$ "
    fi
}

PROMPT_COMMAND=setps

fil() {
    if [ -z "$1" ]; then
        if [ -f ~/.entsfs ] && [ -s ~/.entsfs ]; then
            eihwaz intersect $(cat ~/.entsfs)
        else
            echo "No entity set in ~/.entsfs"
        fi
        return
    fi
    ct $1
    eihwaz intersect $1
}

tag() {
    eihwaz tag add $(cat ~/.entsfs) $@
}
`

const zshScript = `# Zsh Functions

ct() {
    echo $1 > ~/.entsfs
}

setps() {
    if [ -f ~/.entsfs ]; then
        FUSENTS_VALUE=$(cat ~/.entsfs)
        if [ "$FUSENTS_VALUE" = "" ]; then
            PS1="%F{green}%n@%m | %1~ %f%# "
        else
            PS1="%F{green}%n@%m | %1~ | $FUSENTS_VALUE %f%# "
        fi
    else
        touch ~/.entsfs
        PS1="%F{green}%n@%m | %1~ %f%# "
    fi
}

precmd() { setps }

fil() {
    if [ -z "$1" ]; then
        if [ -f ~/.entsfs ] && [ -s ~/.entsfs ]; then
            eihwaz intersect $(cat ~/.entsfs)
        else
            echo "No entity set in ~/.entsfs"
        fi
        return
    fi
    ct $1
    eihwaz intersect $1
}

tag() {
    eihwaz tag add $(cat ~/.entsfs) $@
}
`

// Script picks the helper set for the given $SHELL value. Unknown shells
// get the bash version with a note; an empty value gets both.
func Script(shell string) string {
	switch {
	case shell == "":
		return "# Could not detect shell, showing both versions\n\n" +
			bashScript + "\n" + zshScript
	case strings.Contains(shell, "zsh"):
		return zshScript
	case strings.Contains(shell, "bash"):
		return bashScript
	default:
		return "# Unknown shell: " + shell + "\n# Showing bash version as default\n\n" + bashScript
	}
}
